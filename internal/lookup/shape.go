package lookup

import (
	"bytes"
	"encoding/json"
	"strings"

	"lookupbot/internal/domain"
)

// Branding is the fixed pair of fields stamped on every envelope.
type Branding struct {
	Developer string
	PoweredBy string
}

// Envelope is the shape-normalized, branding-stamped form of a lookup
// result. It is always a mapping with the branding fields at top level.
type Envelope map[string]any

// Shape normalizes a LookupResult into an Envelope. Failures become an
// {error: <reason code>} mapping so they flow through delivery and audit
// like any successful result. Command-specific field suppression runs
// before branding is merged.
func Shape(spec domain.CommandSpec, res domain.LookupResult, brand Branding) Envelope {
	if !res.OK() {
		return Envelope{
			"error":      res.Code(),
			"developer":  brand.Developer,
			"powered_by": brand.PoweredBy,
		}
	}

	if m, ok := res.Payload.(map[string]any); ok {
		env := make(Envelope, len(m)+2)
		for k, v := range m {
			env[k] = v
		}
		for _, field := range spec.DropFields {
			delete(env, field)
		}
		env["developer"] = brand.Developer
		env["powered_by"] = brand.PoweredBy
		return env
	}

	// Sequences and scalars are wrapped so branding is always top-level.
	return Envelope{
		"result":     res.Payload,
		"developer":  brand.Developer,
		"powered_by": brand.PoweredBy,
	}
}

// Render serializes the envelope as pretty-printed JSON with 2-space
// indentation. HTML characters and non-ASCII text are left unescaped;
// escaping for the chat platform happens later, at delivery.
func (e Envelope) Render() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return "{}"
	}
	return strings.TrimRight(buf.String(), "\n")
}
