package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lookupbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id     INTEGER PRIMARY KEY,
		username    TEXT,
		first_name  TEXT,
		last_name   TEXT,
		lookups     INTEGER DEFAULT 0,
		joined_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_seen   DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS admins (
		user_id     INTEGER PRIMARY KEY,
		added_by    INTEGER,
		added_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS banned (
		user_id     INTEGER PRIMARY KEY,
		reason      TEXT,
		banned_by   INTEGER,
		banned_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS lookups (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     INTEGER,
		command     TEXT,
		query       TEXT,
		result      TEXT,
		timestamp   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_lookups_user ON lookups(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_lookups_time ON lookups(timestamp);

	CREATE TABLE IF NOT EXISTS bot_groups (
		group_id    INTEGER PRIMARY KEY,
		group_name  TEXT,
		invite_link TEXT,
		added_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, id int64, username, firstName, lastName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, username, first_name, last_name, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			last_seen = excluded.last_seen`,
		id, username, firstName, lastName, time.Now(),
	)
	return err
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, id)
	return err
}

func (s *SQLiteStore) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, first_name, last_name, lookups, joined_at, last_seen
		 FROM users ORDER BY last_seen DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *SQLiteStore) RecentUsers(ctx context.Context, since time.Time) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, first_name, last_name, lookups, joined_at, last_seen
		 FROM users WHERE last_seen >= ? ORDER BY last_seen DESC`, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *SQLiteStore) InactiveUsers(ctx context.Context, before time.Time) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, first_name, last_name, lookups, joined_at, last_seen
		 FROM users WHERE last_seen < ? ORDER BY last_seen DESC`, before,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]domain.User, error) {
	var users []domain.User
	for rows.Next() {
		var u domain.User
		var username, first, last sql.NullString
		if err := rows.Scan(&u.ID, &username, &first, &last, &u.Lookups, &u.JoinedAt, &u.LastSeen); err != nil {
			return nil, err
		}
		u.Username = username.String
		u.FirstName = first.String
		u.LastName = last.String
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) AllUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) IsBanned(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM banned WHERE user_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) Ban(ctx context.Context, id int64, reason string, by int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO banned (user_id, reason, banned_by) VALUES (?, ?, ?)`,
		id, reason, by,
	)
	return err
}

func (s *SQLiteStore) Unban(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM banned WHERE user_id = ?`, id)
	return err
}

func (s *SQLiteStore) IsAdmin(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM admins WHERE user_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) AddAdmin(ctx context.Context, id, addedBy int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO admins (user_id, added_by) VALUES (?, ?)`, id, addedBy,
	)
	return err
}

func (s *SQLiteStore) RemoveAdmin(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE user_id = ?`, id)
	return err
}

func (s *SQLiteStore) ListAdmins(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM admins ORDER BY added_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveLookup records one invocation and bumps the user's lookup counter.
func (s *SQLiteStore) SaveLookup(ctx context.Context, rec domain.AuditRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lookups (user_id, command, query, result, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.UserID, rec.Command, rec.Query, rec.Result, ts,
	)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET lookups = lookups + 1 WHERE user_id = ?`, rec.UserID,
	)
	return err
}

func (s *SQLiteStore) UserLookups(ctx context.Context, userID int64, limit int) ([]domain.LookupRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT command, query, timestamp FROM lookups
		 WHERE user_id = ? ORDER BY timestamp DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LookupRow
	for rows.Next() {
		var r domain.LookupRow
		if err := rows.Scan(&r.Command, &r.Query, &r.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, lookups FROM users ORDER BY lookups DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LeaderboardRow
	for rows.Next() {
		var r domain.LeaderboardRow
		if err := rows.Scan(&r.UserID, &r.Lookups); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	queries := []struct {
		sql  string
		dest *int64
	}{
		{`SELECT COUNT(*) FROM users`, &st.TotalUsers},
		{`SELECT COUNT(*) FROM lookups`, &st.TotalLookups},
		{`SELECT COUNT(*) FROM admins`, &st.TotalAdmins},
		{`SELECT COUNT(*) FROM banned`, &st.TotalBanned},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return domain.Stats{}, err
		}
	}
	return st, nil
}

func (s *SQLiteStore) DailyStats(ctx context.Context, since time.Time) ([]domain.DailyStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date(timestamp) AS day, command, COUNT(*)
		 FROM lookups WHERE date(timestamp) >= date(?)
		 GROUP BY day, command ORDER BY day DESC`, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailyStat
	for rows.Next() {
		var d domain.DailyStat
		if err := rows.Scan(&d.Day, &d.Command, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CommandStats(ctx context.Context, limit int) ([]domain.CommandStat, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT command, COUNT(*) AS cnt FROM lookups
		 GROUP BY command ORDER BY cnt DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CommandStat
	for rows.Next() {
		var c domain.CommandStat
		if err := rows.Scan(&c.Command, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddGroup(ctx context.Context, id int64, name, inviteLink string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO bot_groups (group_id, group_name, invite_link)
		 VALUES (?, ?, ?)`, id, name, inviteLink,
	)
	return err
}

func (s *SQLiteStore) RemoveGroup(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bot_groups WHERE group_id = ?`, id)
	return err
}

func (s *SQLiteStore) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, group_name, invite_link, added_at FROM bot_groups ORDER BY added_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var g domain.Group
		var name, link sql.NullString
		if err := rows.Scan(&g.ID, &name, &link, &g.AddedAt); err != nil {
			return nil, err
		}
		g.Name = name.String
		g.InviteLink = link.String
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
