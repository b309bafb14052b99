package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"lookupbot/internal/domain"
	"lookupbot/internal/metrics"
)

const truncationMarker = "\n\n... (truncated)"

// Auditor delivers one audit message per invocation to the command's
// configured channel. Delivery is an ordered list of strategies: rich
// formatting first, plain text second, a minimal fixed-field message last.
// Each tier runs only when the previous one failed; exhausting all three
// loses this invocation's channel trail but never touches the user-facing
// response.
type Auditor struct {
	messenger   domain.Messenger
	truncateLen int
	logger      *slog.Logger
	now         func() time.Time
}

func NewAuditor(messenger domain.Messenger, truncateLen int, logger *slog.Logger) *Auditor {
	if truncateLen <= 0 {
		truncateLen = 4000
	}
	return &Auditor{
		messenger:   messenger,
		truncateLen: truncateLen,
		logger:      logger,
		now:         time.Now,
	}
}

// Audit sends the audit record for one invocation. The file is non-nil
// when the user-facing delivery was file-based; tier 1 then forwards the
// same document. Failures are logged locally only.
func (a *Auditor) Audit(ctx context.Context, spec domain.CommandSpec, inv Invocation, redacted string, file *domain.Document) error {
	header := a.header(spec, inv, len(redacted))

	tiers := []struct {
		name string
		send func(context.Context) error
	}{
		{"rich", func(ctx context.Context) error {
			if file != nil {
				return a.messenger.SendDocument(ctx, spec.AuditChannel, *file, header+"\nFormat: JSON File")
			}
			text := a.truncate(header + "\n\nResult:\n\n```json\n" + redacted + "\n```")
			return a.messenger.SendMessage(ctx, spec.AuditChannel, text, domain.SendOptions{ParseMode: domain.ModeMarkdown})
		}},
		{"plain", func(ctx context.Context) error {
			text := a.truncate(header + "\n\nResult:\n\n" + stripMarkup(redacted))
			return a.messenger.SendMessage(ctx, spec.AuditChannel, text, domain.SendOptions{})
		}},
		{"minimal", func(ctx context.Context) error {
			text := fmt.Sprintf("Lookup Log\nUser: %d\nCommand: %s\nInput: %s", inv.UserID, spec.Name, inv.Query)
			return a.messenger.SendMessage(ctx, spec.AuditChannel, text, domain.SendOptions{})
		}},
	}

	var lastErr error
	for _, tier := range tiers {
		if err := tier.send(ctx); err != nil {
			a.logger.Warn("audit tier failed",
				"tier", tier.name,
				"command", spec.Name,
				"channel", spec.AuditChannel,
				"err", err,
			)
			lastErr = err
			continue
		}
		metrics.Collector.GetCounter("lookupbot_audit_sends_total", "Audit messages delivered by tier", "tier="+tier.name).Inc()
		return nil
	}

	metrics.Collector.GetCounter("lookupbot_audit_failures_total", "Invocations whose audit trail was lost").Inc()
	a.logger.Error("audit trail lost, all tiers exhausted",
		"command", spec.Name,
		"user_id", inv.UserID,
		"err", lastErr,
	)
	return fmt.Errorf("audit delivery exhausted: %w", lastErr)
}

func (a *Auditor) header(spec domain.CommandSpec, inv Invocation, size int) string {
	username := inv.Username
	if username == "" {
		username = "N/A"
	}
	return fmt.Sprintf(
		"Lookup Log - %s\n\nUser: %d (@%s)\nType: %s\nInput: %s\nDate: %s\nSize: %d characters",
		strings.ToUpper(spec.Name), inv.UserID, username, spec.Name, inv.Query,
		a.now().Format("02-01-2006 15:04"), size,
	)
}

func (a *Auditor) truncate(text string) string {
	if len(text) <= a.truncateLen {
		return text
	}
	cut := a.truncateLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncationMarker
}

// stripMarkup removes the formatting characters that make tier-1 messages
// rejectable by the platform parser.
func stripMarkup(text string) string {
	replacer := strings.NewReplacer("```", "", "`", "", "*", "", "_", "")
	return replacer.Replace(text)
}
