// Package gate decides whether a user may run lookup commands: banned
// users are rejected first, privileged users bypass everything else, and
// everyone else must be a member of all mandatory channels.
package gate

import (
	"context"
	"log/slog"

	"lookupbot/internal/config"
	"lookupbot/internal/domain"
)

// Reason classifies a denial.
type Reason string

const (
	ReasonBanned    Reason = "banned"
	ReasonNotJoined Reason = "not_joined"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted bool
	Reason   Reason
	// Missing lists exactly the mandatory channels the user has not
	// joined. Set only for ReasonNotJoined.
	Missing []config.ForceJoinChannel
}

// Gate performs read-only admission checks. It never mutates anything;
// callers present join prompts or ban notices based on the Decision.
type Gate struct {
	store     domain.Store
	messenger domain.Messenger
	channels  []config.ForceJoinChannel
	ownerID   int64
	logger    *slog.Logger
}

func New(store domain.Store, messenger domain.Messenger, channels []config.ForceJoinChannel, ownerID int64, logger *slog.Logger) *Gate {
	return &Gate{
		store:     store,
		messenger: messenger,
		channels:  channels,
		ownerID:   ownerID,
		logger:    logger,
	}
}

// Admit evaluates ban status, privilege, and mandatory membership, in that
// order. A membership query error counts as "not a member" of that one
// channel; an unreachable channel check never takes the gate down.
func (g *Gate) Admit(ctx context.Context, userID int64) Decision {
	banned, err := g.store.IsBanned(ctx, userID)
	if err != nil {
		g.logger.Error("ban check failed", "user_id", userID, "err", err)
	}
	if banned {
		return Decision{Reason: ReasonBanned}
	}

	if g.IsPrivileged(ctx, userID) {
		return Decision{Admitted: true}
	}

	var missing []config.ForceJoinChannel
	for _, ch := range g.channels {
		status, err := g.messenger.ChatMember(ctx, ch.ID, userID)
		if err != nil {
			// Fail closed for this channel only.
			g.logger.Warn("membership query failed, treating as not joined",
				"channel", ch.ID, "user_id", userID, "err", err)
			missing = append(missing, ch)
			continue
		}
		if !status.Joined() {
			missing = append(missing, ch)
		}
	}
	if len(missing) > 0 {
		return Decision{Reason: ReasonNotJoined, Missing: missing}
	}
	return Decision{Admitted: true}
}

// IsPrivileged reports whether the user is the owner or a stored admin.
func (g *Gate) IsPrivileged(ctx context.Context, userID int64) bool {
	if userID == g.ownerID {
		return true
	}
	admin, err := g.store.IsAdmin(ctx, userID)
	if err != nil {
		g.logger.Error("admin check failed", "user_id", userID, "err", err)
		return false
	}
	return admin
}

// IsOwner reports whether the user is the configured owner.
func (g *Gate) IsOwner(userID int64) bool { return userID == g.ownerID }
