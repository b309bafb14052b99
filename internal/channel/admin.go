package channel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"lookupbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (t *Telegram) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message, command, args string) {
	if !t.gate.IsPrivileged(ctx, msg.From.ID) {
		t.reply(ctx, msg.Chat.ID, "❌ This command is for admins only.", domain.SendOptions{})
		return
	}

	switch command {
	case "ban":
		t.handleBan(ctx, msg, args, true)
	case "unban":
		t.handleBan(ctx, msg, args, false)
	case "deleteuser":
		t.handleDeleteUser(ctx, msg, args)
	case "users":
		t.handleUsers(ctx, msg)
	case "recentusers":
		t.handleRecentUsers(ctx, msg, args)
	case "inactiveusers":
		t.handleInactiveUsers(ctx, msg, args)
	case "userlookups":
		t.handleUserLookups(ctx, msg, args)
	case "leaderboard":
		t.handleLeaderboard(ctx, msg)
	case "stats":
		t.handleStats(ctx, msg)
	case "dailystats":
		t.handleDailyStats(ctx, msg)
	case "lookupstats":
		t.handleLookupStats(ctx, msg)
	case "group":
		t.handleGroups(ctx, msg)
	}
}

func (t *Telegram) handleOwnerCommand(ctx context.Context, msg *tgbotapi.Message, command, args string) {
	if !t.gate.IsOwner(msg.From.ID) {
		t.reply(ctx, msg.Chat.ID, "❌ This command is for the owner only.", domain.SendOptions{})
		return
	}

	switch command {
	case "addadmin":
		t.handleAddAdmin(ctx, msg, args)
	case "removeadmin":
		t.handleRemoveAdmin(ctx, msg, args)
	case "listadmins":
		t.handleListAdmins(ctx, msg)
	case "backup":
		t.handleBackup(ctx, msg)
	}
}

func (t *Telegram) handleBan(ctx context.Context, msg *tgbotapi.Message, args string, ban bool) {
	if !ban {
		target, err := strconv.ParseInt(args, 10, 64)
		if err != nil {
			t.reply(ctx, msg.Chat.ID, "Usage: /unban <user_id>", domain.SendOptions{})
			return
		}
		if err := t.store.Unban(ctx, target); err != nil {
			t.logger.Error("ban update failed", "target", target, "err", err)
			t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
			return
		}
		t.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ User %d unbanned.", target), domain.SendOptions{})
		return
	}

	id, reason, _ := strings.Cut(args, " ")
	target, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		t.reply(ctx, msg.Chat.ID, "Usage: /ban <user_id> [reason]", domain.SendOptions{})
		return
	}
	err = t.store.Ban(ctx, target, strings.TrimSpace(reason), msg.From.ID)
	if err != nil {
		t.logger.Error("ban update failed", "target", target, "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	t.reply(ctx, msg.Chat.ID, fmt.Sprintf("🚫 User %d banned.", target), domain.SendOptions{})
}

func (t *Telegram) handleDeleteUser(ctx context.Context, msg *tgbotapi.Message, args string) {
	target, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		t.reply(ctx, msg.Chat.ID, "Usage: /deleteuser <user_id>", domain.SendOptions{})
		return
	}
	if err := t.store.DeleteUser(ctx, target); err != nil {
		t.logger.Error("delete user failed", "target", target, "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	t.reply(ctx, msg.Chat.ID, fmt.Sprintf("🗑 User %d deleted.", target), domain.SendOptions{})
}

const userPageSize = 50

func (t *Telegram) handleUsers(ctx context.Context, msg *tgbotapi.Message) {
	users, err := t.store.ListUsers(ctx, userPageSize, 0)
	if err != nil {
		t.logger.Error("list users failed", "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	t.reply(ctx, msg.Chat.ID, formatUsers("👥 USERS", users), domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleRecentUsers(ctx context.Context, msg *tgbotapi.Message, args string) {
	days := parseDays(args, 7)
	users, err := t.store.RecentUsers(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		t.logger.Error("recent users failed", "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	t.reply(ctx, msg.Chat.ID, formatUsers(fmt.Sprintf("🕐 ACTIVE LAST %d DAYS", days), users),
		domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleInactiveUsers(ctx context.Context, msg *tgbotapi.Message, args string) {
	days := parseDays(args, 30)
	users, err := t.store.InactiveUsers(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		t.logger.Error("inactive users failed", "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	t.reply(ctx, msg.Chat.ID, formatUsers(fmt.Sprintf("💤 INACTIVE FOR %d+ DAYS", days), users),
		domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleUserLookups(ctx context.Context, msg *tgbotapi.Message, args string) {
	target, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		t.reply(ctx, msg.Chat.ID, "Usage: /userlookups <user_id>", domain.SendOptions{})
		return
	}
	rows, err := t.store.UserLookups(ctx, target, 20)
	if err != nil {
		t.logger.Error("user lookups failed", "target", target, "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	if len(rows) == 0 {
		t.reply(ctx, msg.Chat.ID, "No lookups recorded for this user.", domain.SendOptions{})
		return
	}
	lines := []string{fmt.Sprintf("🔎 *LOOKUPS BY %d*", target)}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("• `/%s %s` — %s", r.Command, r.Query, r.Timestamp.Format("02-01-2006 15:04")))
	}
	t.reply(ctx, msg.Chat.ID, strings.Join(lines, "\n"), domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleLeaderboard(ctx context.Context, msg *tgbotapi.Message) {
	rows, err := t.store.Leaderboard(ctx, 10)
	if err != nil {
		t.logger.Error("leaderboard failed", "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	lines := []string{"🏆 *TOP USERS*"}
	for i, r := range rows {
		lines = append(lines, fmt.Sprintf("%d. `%d` — %d lookups", i+1, r.UserID, r.Lookups))
	}
	t.reply(ctx, msg.Chat.ID, strings.Join(lines, "\n"), domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	stats, err := t.store.Stats(ctx)
	if err != nil {
		t.logger.Error("stats failed", "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	text := fmt.Sprintf("📊 *BOT STATISTICS*\n\nUsers: %d\nAdmins: %d\nBanned: %d\nTotal lookups: %d",
		stats.TotalUsers, stats.TotalAdmins, stats.TotalBanned, stats.TotalLookups)
	t.reply(ctx, msg.Chat.ID, text, domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleDailyStats(ctx context.Context, msg *tgbotapi.Message) {
	rows, err := t.store.DailyStats(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil {
		t.logger.Error("daily stats failed", "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	lines := []string{"📅 *LOOKUPS LAST 7 DAYS*"}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("• %s /%s — %d", r.Day, r.Command, r.Count))
	}
	t.reply(ctx, msg.Chat.ID, strings.Join(lines, "\n"), domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleLookupStats(ctx context.Context, msg *tgbotapi.Message) {
	rows, err := t.store.CommandStats(ctx, 20)
	if err != nil {
		t.logger.Error("lookup stats failed", "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	lines := []string{"📈 *LOOKUPS PER COMMAND*"}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("• /%s — %d", r.Command, r.Count))
	}
	t.reply(ctx, msg.Chat.ID, strings.Join(lines, "\n"), domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleGroups(ctx context.Context, msg *tgbotapi.Message) {
	groups, err := t.store.ListGroups(ctx)
	if err != nil {
		t.logger.Error("list groups failed", "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	if len(groups) == 0 {
		t.reply(ctx, msg.Chat.ID, "The bot is not an admin in any group.", domain.SendOptions{})
		return
	}
	lines := []string{"👥 *GROUPS*"}
	for _, g := range groups {
		if g.InviteLink != "" {
			lines = append(lines, fmt.Sprintf("• [%s](%s)", g.Name, g.InviteLink))
		} else {
			lines = append(lines, "• "+g.Name)
		}
	}
	t.reply(ctx, msg.Chat.ID, strings.Join(lines, "\n"), domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleAddAdmin(ctx context.Context, msg *tgbotapi.Message, args string) {
	target, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		t.reply(ctx, msg.Chat.ID, "Usage: /addadmin <user_id>", domain.SendOptions{})
		return
	}
	if err := t.store.AddAdmin(ctx, target, msg.From.ID); err != nil {
		t.logger.Error("add admin failed", "target", target, "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	t.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ User %d is now an admin.", target), domain.SendOptions{})
}

func (t *Telegram) handleRemoveAdmin(ctx context.Context, msg *tgbotapi.Message, args string) {
	target, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		t.reply(ctx, msg.Chat.ID, "Usage: /removeadmin <user_id>", domain.SendOptions{})
		return
	}
	if err := t.store.RemoveAdmin(ctx, target); err != nil {
		t.logger.Error("remove admin failed", "target", target, "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	t.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ User %d is no longer an admin.", target), domain.SendOptions{})
}

func (t *Telegram) handleListAdmins(ctx context.Context, msg *tgbotapi.Message) {
	admins, err := t.store.ListAdmins(ctx)
	if err != nil {
		t.logger.Error("list admins failed", "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Database error.", domain.SendOptions{})
		return
	}
	lines := []string{fmt.Sprintf("👑 Owner: %d", t.cfg.Telegram.OwnerID)}
	for _, id := range admins {
		lines = append(lines, fmt.Sprintf("• %d", id))
	}
	t.reply(ctx, msg.Chat.ID, strings.Join(lines, "\n"), domain.SendOptions{})
}

func (t *Telegram) handleBackup(ctx context.Context, msg *tgbotapi.Message) {
	path := t.cfg.Database.Path
	data, err := os.ReadFile(path)
	if err != nil {
		t.logger.Error("backup read failed", "path", path, "err", err)
		t.reply(ctx, msg.Chat.ID, "❌ Cannot read database file.", domain.SendOptions{})
		return
	}
	name := fmt.Sprintf("lookupbot_%s.db", time.Now().Format("20060102_150405"))
	if err := t.SendDocument(ctx, msg.Chat.ID, domain.Document{Name: name, Data: data}, "🗄 Database backup"); err != nil {
		t.logger.Error("backup send failed", "err", err)
	}
}

func parseDays(args string, fallback int) int {
	if n, err := strconv.Atoi(args); err == nil && n > 0 {
		return n
	}
	return fallback
}

func formatUsers(title string, users []domain.User) string {
	if len(users) == 0 {
		return "No users found."
	}
	lines := []string{fmt.Sprintf("*%s* (%d)", title, len(users))}
	for _, u := range users {
		label := strings.TrimSpace(u.FirstName + " " + u.LastName)
		if u.Username != "" {
			label = "@" + u.Username
		}
		if label == "" {
			label = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("• `%d` %s — %d lookups", u.ID, label, u.Lookups))
	}
	return strings.Join(lines, "\n")
}

func adminCommandsList(footer string) string {
	text := strings.Join([]string{
		"🛠 *ADMIN COMMANDS*",
		strings.Repeat("─", 28),
		"• `/ban <id>` → ban a user",
		"• `/unban <id>` → lift a ban",
		"• `/deleteuser <id>` → remove a user record",
		"• `/users` → list registered users",
		"• `/recentusers [days]` → users active recently",
		"• `/inactiveusers [days]` → users gone quiet",
		"• `/userlookups <id>` → a user's lookup history",
		"• `/leaderboard` → most active users",
		"• `/stats` → bot totals",
		"• `/dailystats` → lookups per day",
		"• `/lookupstats` → lookups per command",
		"• `/group` → groups the bot serves",
		"• `/broadcast` → message all users",
		"• `/dm <id>` → message one user",
		"• `/bulkdm <id...>` → message several users",
		"",
		"👑 *OWNER ONLY*",
		"• `/addadmin <id>` / `/removeadmin <id>` / `/listadmins`",
		"• `/backup` → receive the database file",
	}, "\n")
	if footer != "" {
		text += "\n" + footer
	}
	return text
}
