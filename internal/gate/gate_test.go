package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"lookupbot/internal/config"
	"lookupbot/internal/domain"
)

type stubStore struct {
	domain.Store
	banned   map[int64]bool
	admins   map[int64]bool
	banErr   error
	adminErr error
}

func (s *stubStore) IsBanned(ctx context.Context, id int64) (bool, error) {
	if s.banErr != nil {
		return false, s.banErr
	}
	return s.banned[id], nil
}

func (s *stubStore) IsAdmin(ctx context.Context, id int64) (bool, error) {
	if s.adminErr != nil {
		return false, s.adminErr
	}
	return s.admins[id], nil
}

type stubMessenger struct {
	domain.Messenger
	status map[int64]domain.MemberStatus
	errs   map[int64]error
}

func (m *stubMessenger) ChatMember(ctx context.Context, chatID, userID int64) (domain.MemberStatus, error) {
	if err := m.errs[chatID]; err != nil {
		return "", err
	}
	if s, ok := m.status[chatID]; ok {
		return s, nil
	}
	return "member", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testChannels = []config.ForceJoinChannel{
	{Name: "Updates", Link: "https://t.me/updates", ID: -200},
	{Name: "News", Link: "https://t.me/news", ID: -201},
}

func TestAdmit_MemberOfAll(t *testing.T) {
	g := New(&stubStore{}, &stubMessenger{}, testChannels, 1, discardLogger())
	d := g.Admit(context.Background(), 50)
	if !d.Admitted {
		t.Fatalf("expected admission, got %+v", d)
	}
}

func TestAdmit_BannedBeforeEverything(t *testing.T) {
	store := &stubStore{banned: map[int64]bool{50: true}}
	// Member of every channel, still denied.
	g := New(store, &stubMessenger{}, testChannels, 1, discardLogger())
	d := g.Admit(context.Background(), 50)
	if d.Admitted {
		t.Fatal("banned user must be denied")
	}
	if d.Reason != ReasonBanned {
		t.Fatalf("expected ReasonBanned, got %q", d.Reason)
	}
}

func TestAdmit_BannedAdminStillDenied(t *testing.T) {
	store := &stubStore{
		banned: map[int64]bool{50: true},
		admins: map[int64]bool{50: true},
	}
	g := New(store, &stubMessenger{}, testChannels, 1, discardLogger())
	if d := g.Admit(context.Background(), 50); d.Reason != ReasonBanned {
		t.Fatalf("ban must precede privilege, got %+v", d)
	}
}

func TestAdmit_PrivilegedBypassesMembership(t *testing.T) {
	m := &stubMessenger{status: map[int64]domain.MemberStatus{-200: "left", -201: "left"}}

	// Owner
	g := New(&stubStore{}, m, testChannels, 99, discardLogger())
	if d := g.Admit(context.Background(), 99); !d.Admitted {
		t.Fatalf("owner must bypass membership, got %+v", d)
	}

	// Stored admin
	g = New(&stubStore{admins: map[int64]bool{77: true}}, m, testChannels, 1, discardLogger())
	if d := g.Admit(context.Background(), 77); !d.Admitted {
		t.Fatalf("admin must bypass membership, got %+v", d)
	}
}

func TestAdmit_MissingListsExactChannels(t *testing.T) {
	m := &stubMessenger{status: map[int64]domain.MemberStatus{-200: "left"}}
	g := New(&stubStore{}, m, testChannels, 1, discardLogger())

	d := g.Admit(context.Background(), 50)
	if d.Admitted || d.Reason != ReasonNotJoined {
		t.Fatalf("expected ReasonNotJoined, got %+v", d)
	}
	if len(d.Missing) != 1 || d.Missing[0].ID != -200 {
		t.Fatalf("missing list wrong: %+v", d.Missing)
	}
}

func TestAdmit_QueryErrorFailsClosedPerChannel(t *testing.T) {
	m := &stubMessenger{errs: map[int64]error{-200: errors.New("chat not found")}}
	g := New(&stubStore{}, m, testChannels, 1, discardLogger())

	d := g.Admit(context.Background(), 50)
	if d.Admitted {
		t.Fatal("unverifiable channel must deny admission")
	}
	// Only the failing channel lands in the missing list.
	if len(d.Missing) != 1 || d.Missing[0].ID != -200 {
		t.Fatalf("missing list wrong: %+v", d.Missing)
	}
}

func TestAdmit_RestrictedCountsAsJoined(t *testing.T) {
	m := &stubMessenger{status: map[int64]domain.MemberStatus{-200: "restricted", -201: "administrator"}}
	g := New(&stubStore{}, m, testChannels, 1, discardLogger())
	if d := g.Admit(context.Background(), 50); !d.Admitted {
		t.Fatalf("restricted is still present in the channel, got %+v", d)
	}
}

func TestAdmit_KickedCountsAsNotJoined(t *testing.T) {
	m := &stubMessenger{status: map[int64]domain.MemberStatus{-200: "kicked"}}
	g := New(&stubStore{}, m, testChannels, 1, discardLogger())
	if d := g.Admit(context.Background(), 50); d.Admitted {
		t.Fatal("kicked user is not a member")
	}
}

func TestAdmit_BanCheckErrorTreatedAsUnbanned(t *testing.T) {
	store := &stubStore{banErr: errors.New("db closed")}
	g := New(store, &stubMessenger{}, testChannels, 1, discardLogger())
	if d := g.Admit(context.Background(), 50); !d.Admitted {
		t.Fatalf("ban check error must not lock everyone out, got %+v", d)
	}
}

func TestAdmit_NoChannelsConfigured(t *testing.T) {
	g := New(&stubStore{}, &stubMessenger{}, nil, 1, discardLogger())
	if d := g.Admit(context.Background(), 50); !d.Admitted {
		t.Fatalf("no mandatory channels means open gate, got %+v", d)
	}
}

func TestIsPrivileged_AdminErrorDeniesPrivilege(t *testing.T) {
	g := New(&stubStore{adminErr: errors.New("db closed")}, &stubMessenger{}, nil, 1, discardLogger())
	if g.IsPrivileged(context.Background(), 50) {
		t.Fatal("admin check error must not grant privilege")
	}
}

func TestIsOwner(t *testing.T) {
	g := New(&stubStore{}, &stubMessenger{}, nil, 9, discardLogger())
	if !g.IsOwner(9) || g.IsOwner(10) {
		t.Fatal("owner check wrong")
	}
}
