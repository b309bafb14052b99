package domain

import (
	"context"
	"time"
)

// Store handles persistent state: users, admins, bans, lookup history, and
// the groups the bot administers. Individual calls are atomic; the bot
// never spans a transaction across calls.
type Store interface {
	UpsertUser(ctx context.Context, id int64, username, firstName, lastName string) error
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
	RecentUsers(ctx context.Context, since time.Time) ([]User, error)
	InactiveUsers(ctx context.Context, before time.Time) ([]User, error)
	AllUserIDs(ctx context.Context) ([]int64, error)

	IsBanned(ctx context.Context, id int64) (bool, error)
	Ban(ctx context.Context, id int64, reason string, by int64) error
	Unban(ctx context.Context, id int64) error

	IsAdmin(ctx context.Context, id int64) (bool, error)
	AddAdmin(ctx context.Context, id, addedBy int64) error
	RemoveAdmin(ctx context.Context, id int64) error
	ListAdmins(ctx context.Context) ([]int64, error)

	SaveLookup(ctx context.Context, rec AuditRecord) error
	UserLookups(ctx context.Context, userID int64, limit int) ([]LookupRow, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)
	Stats(ctx context.Context) (Stats, error)
	DailyStats(ctx context.Context, since time.Time) ([]DailyStat, error)
	CommandStats(ctx context.Context, limit int) ([]CommandStat, error)

	AddGroup(ctx context.Context, id int64, name, inviteLink string) error
	RemoveGroup(ctx context.Context, id int64) error
	ListGroups(ctx context.Context) ([]Group, error)

	Close() error
}

// AuditRecord is the persisted trace of one lookup invocation. Result
// holds the serialized envelope, for failed lookups included.
type AuditRecord struct {
	UserID    int64     `json:"user_id"`
	Command   string    `json:"command"`
	Query     string    `json:"query"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Lookups   int64     `json:"lookups"`
	JoinedAt  time.Time `json:"joined_at"`
	LastSeen  time.Time `json:"last_seen"`
}

type LookupRow struct {
	Command   string    `json:"command"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

type LeaderboardRow struct {
	UserID  int64 `json:"user_id"`
	Lookups int64 `json:"lookups"`
}

type Stats struct {
	TotalUsers   int64 `json:"total_users"`
	TotalLookups int64 `json:"total_lookups"`
	TotalAdmins  int64 `json:"total_admins"`
	TotalBanned  int64 `json:"total_banned"`
}

type DailyStat struct {
	Day     string `json:"day"`
	Command string `json:"command"`
	Count   int64  `json:"count"`
}

type CommandStat struct {
	Command string `json:"command"`
	Count   int64  `json:"count"`
}

type Group struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	InviteLink string    `json:"invite_link"`
	AddedAt    time.Time `json:"added_at"`
}
