package config

import (
	"fmt"
	"os"
	"strings"

	"lookupbot/internal/domain"

	"gopkg.in/yaml.v3"
)

// Registry is the immutable command table loaded at startup.
type Registry struct {
	order  []string
	byName map[string]domain.CommandSpec
}

type registryFile struct {
	Commands []domain.CommandSpec `yaml:"commands"`
}

// LoadRegistry reads and validates the command registry YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("cannot read registry file %s: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cannot parse registry file %s: %w", path, err)
	}

	return NewRegistry(file.Commands)
}

// NewRegistry builds a registry from specs, enforcing unique names and
// exactly one endpoint substitution slot per command.
func NewRegistry(specs []domain.CommandSpec) (*Registry, error) {
	reg := &Registry{byName: make(map[string]domain.CommandSpec, len(specs))}
	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("command[%d]: name is required", i)
		}
		name := strings.ToLower(spec.Name)
		if _, dup := reg.byName[name]; dup {
			return nil, fmt.Errorf("command %q: duplicate name", name)
		}
		if n := strings.Count(spec.Endpoint, domain.EndpointSlot); n != 1 {
			return nil, fmt.Errorf("command %q: endpoint must contain exactly one %s slot, found %d", name, domain.EndpointSlot, n)
		}
		if spec.AuditChannel == 0 {
			return nil, fmt.Errorf("command %q: audit_channel is required", name)
		}
		spec.Name = name
		reg.byName[name] = spec
		reg.order = append(reg.order, name)
	}
	return reg, nil
}

// Get returns the spec for a command name (case-insensitive).
func (r *Registry) Get(name string) (domain.CommandSpec, bool) {
	spec, ok := r.byName[strings.ToLower(name)]
	return spec, ok
}

// All returns the specs in file order.
func (r *Registry) All() []domain.CommandSpec {
	specs := make([]domain.CommandSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.byName[name])
	}
	return specs
}

// Len returns the number of registered commands.
func (r *Registry) Len() int { return len(r.order) }

// SampleRegistryYAML is written by `lookupbot init` as a starting point.
const SampleRegistryYAML = `# lookupbot command registry.
# Every endpoint must contain exactly one {} slot for the user query.
commands:
  - name: ip
    endpoint: "https://example-lookup.invalid/api/ip?ip={}"
    param: "IP address"
    desc: "IP geolocation & ISP details"
    audit_channel: -1000000000001
  - name: gst
    endpoint: "https://example-lookup.invalid/gst?number={}"
    param: "GST number"
    desc: "GST registration info"
    audit_channel: -1000000000002
  - name: pincode
    endpoint: "https://api.postalpincode.in/pincode/{}"
    param: "6-digit pincode"
    desc: "Area & post office details"
    audit_channel: -1000000000003
  - name: tg2num
    endpoint: "https://example-lookup.invalid/tg2num?userid={}"
    param: "user id"
    desc: "Telegram user ID to number (if available)"
    audit_channel: -1000000000004
    drop_fields: [credit, channel, validity]
`
