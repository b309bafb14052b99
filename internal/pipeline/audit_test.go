package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"lookupbot/internal/domain"
)

type sentMessage struct {
	chatID int64
	text   string
	opts   domain.SendOptions
}

type sentDocument struct {
	chatID  int64
	doc     domain.Document
	caption string
}

// fakeMessenger records outbound traffic and fails on demand. msgErrs is
// consumed one entry per SendMessage call; a nil entry means success.
type fakeMessenger struct {
	mu        sync.Mutex
	messages  []sentMessage
	documents []sentDocument
	msgErrs   []error
	docErr    error
	copyErrs  map[int64]error
	status    map[int64]domain.MemberStatus
}

func (f *fakeMessenger) SendMessage(ctx context.Context, chatID int64, text string, opts domain.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if len(f.msgErrs) > 0 {
		err = f.msgErrs[0]
		f.msgErrs = f.msgErrs[1:]
	}
	if err != nil {
		return err
	}
	f.messages = append(f.messages, sentMessage{chatID, text, opts})
	return nil
}

func (f *fakeMessenger) SendDocument(ctx context.Context, chatID int64, doc domain.Document, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docErr != nil {
		return f.docErr
	}
	f.documents = append(f.documents, sentDocument{chatID, doc, caption})
	return nil
}

func (f *fakeMessenger) ChatMember(ctx context.Context, chatID, userID int64) (domain.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.status[chatID]; ok {
		return s, nil
	}
	return domain.MemberStatus("member"), nil
}

func (f *fakeMessenger) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copyErrs[toChatID]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var auditSpec = domain.CommandSpec{Name: "ip", AuditChannel: -1001}

func auditInvocation() Invocation {
	return Invocation{UserID: 42, Username: "alice", ChatID: 7, Command: "ip", Query: "1.2.3.4"}
}

func TestAudit_RichTier(t *testing.T) {
	m := &fakeMessenger{}
	a := NewAuditor(m, 4000, discardLogger())

	if err := a.Audit(context.Background(), auditSpec, auditInvocation(), `{"ok": true}`, nil); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(m.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(m.messages))
	}

	msg := m.messages[0]
	if msg.chatID != -1001 {
		t.Fatalf("audit sent to wrong channel: %d", msg.chatID)
	}
	if msg.opts.ParseMode != domain.ModeMarkdown {
		t.Fatalf("rich tier must use markdown, got %q", msg.opts.ParseMode)
	}
	for _, want := range []string{"Lookup Log - IP", "User: 42 (@alice)", "Input: 1.2.3.4", "```json"} {
		if !strings.Contains(msg.text, want) {
			t.Fatalf("audit message missing %q:\n%s", want, msg.text)
		}
	}
}

func TestAudit_FallsBackToPlain(t *testing.T) {
	m := &fakeMessenger{msgErrs: []error{errors.New("bad markup")}}
	a := NewAuditor(m, 4000, discardLogger())

	if err := a.Audit(context.Background(), auditSpec, auditInvocation(), "`tricky`", nil); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(m.messages) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(m.messages))
	}

	msg := m.messages[0]
	if msg.opts.ParseMode != domain.ModePlain {
		t.Fatalf("fallback tier must be plain, got %q", msg.opts.ParseMode)
	}
	if strings.Contains(msg.text, "`") {
		t.Fatalf("plain tier must strip markup: %s", msg.text)
	}
}

func TestAudit_FallsBackToMinimal(t *testing.T) {
	m := &fakeMessenger{msgErrs: []error{errors.New("one"), errors.New("two")}}
	a := NewAuditor(m, 4000, discardLogger())

	if err := a.Audit(context.Background(), auditSpec, auditInvocation(), "{}", nil); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(m.messages) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(m.messages))
	}

	want := "Lookup Log\nUser: 42\nCommand: ip\nInput: 1.2.3.4"
	if m.messages[0].text != want {
		t.Fatalf("unexpected minimal message:\n%s", m.messages[0].text)
	}
}

func TestAudit_AllTiersExhausted(t *testing.T) {
	m := &fakeMessenger{msgErrs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	a := NewAuditor(m, 4000, discardLogger())

	if err := a.Audit(context.Background(), auditSpec, auditInvocation(), "{}", nil); err == nil {
		t.Fatal("expected error when every tier fails")
	}
	if len(m.messages) != 0 {
		t.Fatalf("no message should have been delivered, got %d", len(m.messages))
	}
}

func TestAudit_FileDelivery(t *testing.T) {
	m := &fakeMessenger{}
	a := NewAuditor(m, 4000, discardLogger())
	file := &domain.Document{Name: "ip_1.2.3.4.json", Data: []byte("{}")}

	if err := a.Audit(context.Background(), auditSpec, auditInvocation(), "{}", file); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(m.documents) != 1 {
		t.Fatalf("expected document forward, got %d", len(m.documents))
	}
	if !strings.Contains(m.documents[0].caption, "Format: JSON File") {
		t.Fatalf("caption missing format note: %s", m.documents[0].caption)
	}
}

func TestAudit_FileFailureFallsBackToText(t *testing.T) {
	m := &fakeMessenger{docErr: errors.New("too big")}
	a := NewAuditor(m, 4000, discardLogger())
	file := &domain.Document{Name: "x.json", Data: []byte("{}")}

	if err := a.Audit(context.Background(), auditSpec, auditInvocation(), "{}", file); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(m.messages) != 1 {
		t.Fatal("expected text fallback after document failure")
	}
}

func TestAudit_Truncation(t *testing.T) {
	m := &fakeMessenger{}
	a := NewAuditor(m, 300, discardLogger())
	long := strings.Repeat("x", 1000)

	if err := a.Audit(context.Background(), auditSpec, auditInvocation(), long, nil); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	text := m.messages[0].text
	if !strings.HasSuffix(text, truncationMarker) {
		t.Fatalf("expected truncation marker, got tail %q", text[len(text)-30:])
	}
	if len(text) > 300+len(truncationMarker) {
		t.Fatalf("truncated text too long: %d", len(text))
	}
}
