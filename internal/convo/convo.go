// Package convo holds the short-lived broadcast/DM conversation state:
// an admin enters a target set, the next message from that admin becomes
// the payload, and the payload is fanned out best-effort to every target.
package convo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"lookupbot/internal/domain"
	"lookupbot/internal/metrics"
)

// Mode selects how the target set is resolved.
type Mode string

const (
	ModeAll    Mode = "all"    // every stored user, resolved at fan-out time
	ModeSingle Mode = "single" // one explicit id
	ModeBulk   Mode = "bulk"   // several explicit ids
)

// State is an awaiting-payload conversation. Absence from the session map
// means Idle; there is at most one State per initiating admin. ChatID pins
// the conversation to the chat it was entered in, so the admin's messages
// elsewhere never become the payload.
type State struct {
	ChatID  int64
	Mode    Mode
	Targets []int64
}

// Report aggregates per-target fan-out results.
type Report struct {
	Success int
	Failed  int
}

// Sessions is the injectable, process-wide conversation store.
type Sessions struct {
	store     domain.Store
	messenger domain.Messenger
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[int64]State // admin user id -> awaiting payload
}

func NewSessions(store domain.Store, messenger domain.Messenger, logger *slog.Logger) *Sessions {
	return &Sessions{
		store:     store,
		messenger: messenger,
		logger:    logger,
		pending:   make(map[int64]State),
	}
}

// Enter transitions the admin's session to AwaitingPayload in the given
// chat. A second entry while already awaiting restarts the state,
// replacing the target set and the chat.
func (s *Sessions) Enter(userID, chatID int64, mode Mode, targets []int64) {
	s.mu.Lock()
	s.pending[userID] = State{ChatID: chatID, Mode: mode, Targets: targets}
	s.mu.Unlock()
}

// Awaiting reports whether the admin has a conversation pending in this
// chat. A session entered in another chat does not count.
func (s *Sessions) Awaiting(userID, chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.pending[userID]
	return ok && state.ChatID == chatID
}

// Cancel returns the session to Idle without fan-out. Like Awaiting it is
// scoped to the initiating chat.
func (s *Sessions) Cancel(userID, chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.pending[userID]
	if !ok || state.ChatID != chatID {
		return false
	}
	delete(s.pending, userID)
	return true
}

// Dispatch consumes the pending state and fans the captured payload out.
// Only a message from the initiating chat is accepted as the payload; a
// message elsewhere leaves the session pending and reports false. ModeAll
// resolves the recipient list from the store at this moment, not at entry
// time. One target's failure never aborts the rest. The boolean is false
// when the admin had nothing pending in this chat; a non-nil error means
// the recipient list could not be resolved and nothing was sent.
func (s *Sessions) Dispatch(ctx context.Context, userID, fromChatID int64, messageID int) (Report, bool, error) {
	s.mu.Lock()
	state, ok := s.pending[userID]
	if ok && state.ChatID != fromChatID {
		ok = false
	} else {
		delete(s.pending, userID)
	}
	s.mu.Unlock()
	if !ok {
		return Report{}, false, nil
	}

	targets := state.Targets
	if state.Mode == ModeAll {
		ids, err := s.store.AllUserIDs(ctx)
		if err != nil {
			s.logger.Error("cannot resolve broadcast recipients", "err", err)
			return Report{}, true, fmt.Errorf("resolve recipients: %w", err)
		}
		targets = ids
	}

	var report Report
	for _, target := range targets {
		if err := s.messenger.CopyMessage(ctx, target, fromChatID, messageID); err != nil {
			s.logger.Warn("fan-out send failed", "target", target, "err", err)
			report.Failed++
			continue
		}
		report.Success++
	}

	metrics.Collector.GetCounter("lookupbot_fanout_sends_total", "Fan-out deliveries by result", "result=success").Add(int64(report.Success))
	metrics.Collector.GetCounter("lookupbot_fanout_sends_total", "Fan-out deliveries by result", "result=failed").Add(int64(report.Failed))

	s.logger.Info("fan-out complete",
		"mode", state.Mode,
		"success", report.Success,
		"failed", report.Failed,
	)
	return report, true, nil
}
