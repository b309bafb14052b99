package convo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"lookupbot/internal/domain"
)

type stubStore struct {
	domain.Store
	allIDs []int64
	allErr error
}

func (s *stubStore) AllUserIDs(ctx context.Context) ([]int64, error) {
	if s.allErr != nil {
		return nil, s.allErr
	}
	return s.allIDs, nil
}

type stubMessenger struct {
	domain.Messenger
	copied []int64
	fail   map[int64]bool
}

func (m *stubMessenger) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	if m.fail[toChatID] {
		return errors.New("blocked the bot")
	}
	m.copied = append(m.copied, toChatID)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessions_EnterAwaitingCancel(t *testing.T) {
	s := NewSessions(&stubStore{}, &stubMessenger{}, discardLogger())

	if s.Awaiting(1, 100) {
		t.Fatal("fresh session must be idle")
	}
	s.Enter(1, 100, ModeSingle, []int64{5})
	if !s.Awaiting(1, 100) {
		t.Fatal("expected awaiting state after Enter")
	}
	if !s.Cancel(1, 100) {
		t.Fatal("cancel of pending session must report true")
	}
	if s.Awaiting(1, 100) {
		t.Fatal("cancel must return the session to idle")
	}
	if s.Cancel(1, 100) {
		t.Fatal("cancel of idle session must report false")
	}
}

func TestSessions_ScopedToInitiatingChat(t *testing.T) {
	store := &stubStore{allIDs: []int64{1, 2, 3}}
	m := &stubMessenger{}
	s := NewSessions(store, m, discardLogger())

	s.Enter(1, 500, ModeAll, nil)

	if s.Awaiting(1, 900) {
		t.Fatal("session entered in chat 500 must not be awaiting in chat 900")
	}
	if s.Cancel(1, 900) {
		t.Fatal("cancel from another chat must not touch the session")
	}
	// The admin's message in an unrelated chat is never the payload.
	if _, ok, _ := s.Dispatch(context.Background(), 1, 900, 42); ok {
		t.Fatal("dispatch from another chat must report nothing pending")
	}
	if len(m.copied) != 0 {
		t.Fatalf("message from another chat fanned out: %v", m.copied)
	}
	if !s.Awaiting(1, 500) {
		t.Fatal("session must survive the off-chat message")
	}

	report, ok, err := s.Dispatch(context.Background(), 1, 500, 43)
	if !ok || err != nil {
		t.Fatalf("dispatch from the initiating chat must run: ok=%v err=%v", ok, err)
	}
	if report.Success != 3 {
		t.Fatalf("expected 3 deliveries, got %+v", report)
	}
}

func TestSessions_RestartReplacesTargets(t *testing.T) {
	m := &stubMessenger{}
	s := NewSessions(&stubStore{}, m, discardLogger())

	s.Enter(1, 100, ModeSingle, []int64{5})
	s.Enter(1, 100, ModeBulk, []int64{6, 7}) // restart replaces the target set

	report, ok, err := s.Dispatch(context.Background(), 1, 100, 10)
	if !ok || err != nil {
		t.Fatalf("expected pending session: ok=%v err=%v", ok, err)
	}
	if report.Success != 2 {
		t.Fatalf("expected 2 deliveries, got %+v", report)
	}
	if len(m.copied) != 2 || m.copied[0] != 6 || m.copied[1] != 7 {
		t.Fatalf("old target set leaked into fan-out: %v", m.copied)
	}
}

func TestDispatch_PartialFailure(t *testing.T) {
	targets := make([]int64, 100)
	fail := make(map[int64]bool)
	for i := range targets {
		targets[i] = int64(i + 1)
	}
	for _, id := range []int64{10, 40, 90} {
		fail[id] = true
	}

	m := &stubMessenger{fail: fail}
	s := NewSessions(&stubStore{}, m, discardLogger())
	s.Enter(1, 100, ModeBulk, targets)

	report, ok, err := s.Dispatch(context.Background(), 1, 100, 10)
	if !ok || err != nil {
		t.Fatalf("expected pending session: ok=%v err=%v", ok, err)
	}
	if report.Success != 97 || report.Failed != 3 {
		t.Fatalf("expected 97/3, got %+v", report)
	}
}

func TestDispatch_ModeAllResolvesAtFanOutTime(t *testing.T) {
	store := &stubStore{allIDs: []int64{1, 2}}
	m := &stubMessenger{}
	s := NewSessions(store, m, discardLogger())

	s.Enter(9, 100, ModeAll, nil)
	// A user registered between Enter and Dispatch is included.
	store.allIDs = []int64{1, 2, 3}

	report, ok, err := s.Dispatch(context.Background(), 9, 100, 10)
	if !ok || err != nil {
		t.Fatalf("expected pending session: ok=%v err=%v", ok, err)
	}
	if report.Success != 3 {
		t.Fatalf("expected recipient list resolved at dispatch, got %+v", report)
	}
}

func TestDispatch_NothingPending(t *testing.T) {
	s := NewSessions(&stubStore{}, &stubMessenger{}, discardLogger())
	if _, ok, _ := s.Dispatch(context.Background(), 1, 100, 10); ok {
		t.Fatal("dispatch without Enter must report false")
	}
}

func TestDispatch_ConsumesSession(t *testing.T) {
	s := NewSessions(&stubStore{}, &stubMessenger{}, discardLogger())
	s.Enter(1, 100, ModeSingle, []int64{5})

	if _, ok, _ := s.Dispatch(context.Background(), 1, 100, 10); !ok {
		t.Fatal("first dispatch must succeed")
	}
	if s.Awaiting(1, 100) {
		t.Fatal("dispatch must consume the session")
	}
	if _, ok, _ := s.Dispatch(context.Background(), 1, 100, 11); ok {
		t.Fatal("second dispatch must find nothing pending")
	}
}

func TestDispatch_StoreErrorOnBroadcast(t *testing.T) {
	s := NewSessions(&stubStore{allErr: errors.New("db closed")}, &stubMessenger{}, discardLogger())
	s.Enter(1, 100, ModeAll, nil)

	report, ok, err := s.Dispatch(context.Background(), 1, 100, 10)
	if !ok {
		t.Fatal("session was pending, consume must report true")
	}
	if err == nil {
		t.Fatal("failed resolution must surface an error")
	}
	if report.Success != 0 || report.Failed != 0 {
		t.Fatalf("no recipients resolvable, got %+v", report)
	}
	if s.Awaiting(1, 100) {
		t.Fatal("failed resolution must still consume the session")
	}
}
