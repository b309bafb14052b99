// Package pipeline implements the lookup-dispatch sequence: registry
// resolution, upstream fetch, shaping, redaction, size-based delivery
// routing, persistence, and the tiered channel audit. One invocation runs
// as a single sequential unit of work; concurrent invocations only share
// the copy cache and the store.
package pipeline

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lookupbot/internal/config"
	"lookupbot/internal/domain"
	"lookupbot/internal/lookup"
	"lookupbot/internal/metrics"
)

// Invocation is one parsed lookup command from a chat.
type Invocation struct {
	UserID   int64
	Username string
	ChatID   int64
	Command  string
	Query    string
}

// Outcome says how the user-facing response was delivered.
type Outcome string

const (
	OutcomeInline Outcome = "inline"
	OutcomeFile   Outcome = "file"
	OutcomeNone   Outcome = "none" // delivery failed
)

// UsernameResolver optionally maps an @username query to a platform id
// before template expansion. Only commands with the resolve_username
// capability use it.
type UsernameResolver interface {
	Resolve(ctx context.Context, query string) (string, error)
}

// Config wires a Pipeline's collaborators.
type Config struct {
	Registry       *config.Registry
	Client         *lookup.Client
	Redactor       *lookup.Redactor
	Cache          *CopyCache
	Auditor        *Auditor
	Store          domain.Store
	Messenger      domain.Messenger
	Brand          lookup.Branding
	Footer         string
	InlineMaxLen   int
	RedactedMaxLen int
	Resolver       UsernameResolver
	Logger         *slog.Logger
}

type Pipeline struct {
	registry       *config.Registry
	client         *lookup.Client
	redactor       *lookup.Redactor
	cache          *CopyCache
	auditor        *Auditor
	store          domain.Store
	messenger      domain.Messenger
	brand          lookup.Branding
	footer         string
	inlineMaxLen   int
	redactedMaxLen int
	resolver       UsernameResolver
	logger         *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.InlineMaxLen <= 0 {
		cfg.InlineMaxLen = 4096
	}
	if cfg.RedactedMaxLen <= 0 {
		cfg.RedactedMaxLen = 3000
	}
	if cfg.Footer == "" {
		cfg.Footer = fmt.Sprintf("\n\n<b>Developer:</b> %s\n<b>Powered by:</b> %s",
			html.EscapeString(cfg.Brand.Developer), html.EscapeString(cfg.Brand.PoweredBy))
	}
	return &Pipeline{
		registry:       cfg.Registry,
		client:         cfg.Client,
		redactor:       cfg.Redactor,
		cache:          cfg.Cache,
		auditor:        cfg.Auditor,
		store:          cfg.Store,
		messenger:      cfg.Messenger,
		brand:          cfg.Brand,
		footer:         cfg.Footer,
		inlineMaxLen:   cfg.InlineMaxLen,
		redactedMaxLen: cfg.RedactedMaxLen,
		resolver:       cfg.Resolver,
		logger:         cfg.Logger,
	}
}

// Handle runs one invocation end to end. The caller has already admitted
// the user through the gate. Every exit path leaves the user with exactly
// one response: a result, an error-shaped result, or a notice.
func (p *Pipeline) Handle(ctx context.Context, inv Invocation) {
	spec, ok := p.registry.Get(inv.Command)
	if !ok {
		p.notify(ctx, inv.ChatID, "Command not found.")
		return
	}

	query := strings.TrimSpace(inv.Query)
	if spec.ResolveUsername && p.resolver != nil {
		if resolved, err := p.resolver.Resolve(ctx, query); err == nil && resolved != "" {
			query = resolved
		} else if err != nil {
			p.logger.Warn("username resolution failed, using raw query",
				"command", spec.Name, "err", err)
		}
	}
	inv.Query = query

	result := p.client.Fetch(ctx, spec.URL(query))
	if !result.OK() {
		metrics.Collector.GetCounter("lookupbot_lookup_failures_total", "Upstream lookup failures by reason", "reason="+string(result.Reason)).Inc()
	}
	metrics.Collector.GetCounter("lookupbot_lookups_total", "Lookup invocations by command", "command="+spec.Name).Inc()

	envelope := lookup.Shape(spec, result, p.brand)
	rendered := envelope.Render()
	redacted := p.redactor.Redact(rendered, spec.ExtraRedactions)

	outcome, file := p.deliver(ctx, spec, inv, envelope, redacted)
	metrics.Collector.GetCounter("lookupbot_deliveries_total", "User-facing deliveries by outcome", "outcome="+string(outcome)).Inc()

	// Persistence and audit run after delivery and never affect it.
	if err := p.store.SaveLookup(ctx, domain.AuditRecord{
		UserID:    inv.UserID,
		Command:   spec.Name,
		Query:     inv.Query,
		Result:    rendered,
		Timestamp: time.Now(),
	}); err != nil {
		p.logger.Error("failed to persist lookup", "command", spec.Name, "user_id", inv.UserID, "err", err)
	}

	_ = p.auditor.Audit(ctx, spec, inv, redacted, file)
}

// deliver routes the response inline or as a file attachment. It returns
// the outcome and, for file delivery, the document handed to the auditor.
func (p *Pipeline) deliver(ctx context.Context, spec domain.CommandSpec, inv Invocation, envelope lookup.Envelope, redacted string) (Outcome, *domain.Document) {
	escaped := "<pre>" + html.EscapeString(redacted) + "</pre>" + p.footer

	if len(escaped) > p.inlineMaxLen || len(redacted) > p.redactedMaxLen {
		return p.deliverFile(ctx, spec, inv, redacted)
	}

	token := p.cache.Put(envelope)
	opts := domain.SendOptions{
		ParseMode: domain.ModeHTML,
		Buttons: [][]domain.Button{{
			{Label: "📋 Copy", Data: "copy:" + token},
			{Label: "🔍 Search", Data: "search:" + spec.Name},
		}},
	}
	if err := p.messenger.SendMessage(ctx, inv.ChatID, escaped, opts); err != nil {
		// No message carries the button, so the token can never be used.
		p.cache.Take(token)
		p.logger.Error("inline delivery failed", "command", spec.Name, "chat_id", inv.ChatID, "err", err)
		p.notify(ctx, inv.ChatID, "Failed to deliver the result. Please try again.")
		return OutcomeNone, nil
	}
	return OutcomeInline, nil
}

func (p *Pipeline) deliverFile(ctx context.Context, spec domain.CommandSpec, inv Invocation, redacted string) (Outcome, *domain.Document) {
	name := exportFileName(spec.Name, inv.Query)
	doc := domain.Document{Name: name, Data: []byte(redacted)}

	// The export is staged through a transient file that is removed on
	// every exit path, delivery failure included.
	path := filepath.Join(os.TempDir(), name)
	if err := os.WriteFile(path, doc.Data, 0o600); err != nil {
		p.logger.Error("cannot stage export file", "path", path, "err", err)
		p.notify(ctx, inv.ChatID, "Failed to deliver the result. Please try again.")
		return OutcomeNone, nil
	}
	defer os.Remove(path)

	caption := fmt.Sprintf("📎 Output too long, sent as file.\n\nDeveloper: %s\nPowered by: %s",
		p.brand.Developer, p.brand.PoweredBy)
	if err := p.messenger.SendDocument(ctx, inv.ChatID, doc, caption); err != nil {
		p.logger.Error("file delivery failed", "command", spec.Name, "chat_id", inv.ChatID, "err", err)
		p.notify(ctx, inv.ChatID, "Failed to deliver the result file. Please try again.")
		return OutcomeNone, nil
	}
	return OutcomeFile, &doc
}

// notify sends a plain-text notice, logging send failures.
func (p *Pipeline) notify(ctx context.Context, chatID int64, text string) {
	if err := p.messenger.SendMessage(ctx, chatID, text, domain.SendOptions{}); err != nil {
		p.logger.Error("notice delivery failed", "chat_id", chatID, "err", err)
	}
}

// exportFileName builds <command>_<first 50 query chars, spaces as
// underscores>.json, with path separators stripped.
func exportFileName(command, query string) string {
	runes := []rune(query)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	part := strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(string(runes))
	return command + "_" + part + ".json"
}
