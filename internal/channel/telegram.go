package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"lookupbot/internal/config"
	"lookupbot/internal/convo"
	"lookupbot/internal/domain"
	"lookupbot/internal/gate"
	"lookupbot/internal/pipeline"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const cacheSweepInterval = 60 * time.Second

// Telegram is the bot frontend. It implements domain.Messenger for the
// gate, the pipeline, and the fan-out, and owns the update loop that
// dispatches one goroutine per inbound event.
type Telegram struct {
	token    string
	cfg      *config.Config
	registry *config.Registry
	store    domain.Store
	logger   *slog.Logger

	bot      *tgbotapi.BotAPI
	gate     *gate.Gate
	pipe     *pipeline.Pipeline
	sessions *convo.Sessions
	cache    *pipeline.CopyCache
}

type TelegramConfig struct {
	Token    string
	Config   *config.Config
	Registry *config.Registry
	Store    domain.Store
	Logger   *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		token:    cfg.Token,
		cfg:      cfg.Config,
		registry: cfg.Registry,
		store:    cfg.Store,
		logger:   cfg.Logger,
	}
}

// Attach wires the collaborators that themselves need this channel as
// their Messenger. Must be called before Start.
func (t *Telegram) Attach(g *gate.Gate, p *pipeline.Pipeline, s *convo.Sessions, c *pipeline.CopyCache) {
	t.gate = g
	t.pipe = p
	t.sessions = s
	t.cache = c
}

// Start connects to Telegram and polls for updates until ctx is done.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	go t.sweepLoop(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			// One worker per inbound event; events from different
			// users run concurrently.
			go t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.cache.Sweep(); n > 0 {
				t.logger.Debug("copy cache swept", "evicted", n)
			}
		}
	}
}

// --- domain.Messenger ---

func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string, opts domain.SendOptions) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = string(opts.ParseMode)
	if markup, ok := keyboard(opts.Buttons); ok {
		msg.ReplyMarkup = markup
	}
	_, err := t.bot.Send(msg)
	return err
}

func (t *Telegram) SendDocument(ctx context.Context, chatID int64, doc domain.Document, caption string) error {
	cfg := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Data})
	cfg.Caption = caption
	_, err := t.bot.Send(cfg)
	return err
}

func (t *Telegram) ChatMember(ctx context.Context, chatID, userID int64) (domain.MemberStatus, error) {
	member, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return "", err
	}
	return domain.MemberStatus(member.Status), nil
}

func (t *Telegram) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	_, err := t.bot.CopyMessage(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID))
	return err
}

func keyboard(rows [][]domain.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	var kb [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var line []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			if b.URL != "" {
				line = append(line, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
			} else {
				line = append(line, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
			}
		}
		kb = append(kb, line)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...), true
}

// --- update routing ---

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		t.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.MyChatMember != nil {
		t.handleGroupMembership(ctx, update.MyChatMember)
		return
	}
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	msg := update.Message
	from := msg.From

	if err := t.store.UpsertUser(ctx, from.ID, from.UserName, from.FirstName, from.LastName); err != nil {
		t.logger.Error("failed to upsert user", "user_id", from.ID, "err", err)
	}

	// A pending broadcast/DM conversation captures the next non-command
	// message from the initiating admin in the chat it was entered in,
	// whatever its media type.
	if !msg.IsCommand() {
		if t.sessions.Awaiting(from.ID, msg.Chat.ID) {
			t.receivePayload(ctx, msg)
		}
		return
	}

	command := strings.ToLower(msg.Command())
	args := strings.TrimSpace(msg.CommandArguments())

	if !t.admitChat(ctx, msg, command) {
		return
	}

	switch command {
	case "start":
		t.handleStart(ctx, msg)
	case "help":
		t.handleHelp(ctx, msg)
	case "admin":
		t.handleAdminHelp(ctx, msg)
	case "cancel":
		t.handleCancel(ctx, msg)
	case "broadcast", "dm", "bulkdm":
		t.handleConversationEntry(ctx, msg, command, args)
	case "ban", "unban", "deleteuser", "users", "recentusers", "inactiveusers",
		"userlookups", "leaderboard", "stats", "dailystats", "lookupstats", "group":
		t.handleAdminCommand(ctx, msg, command, args)
	case "addadmin", "removeadmin", "listadmins", "backup":
		t.handleOwnerCommand(ctx, msg, command, args)
	default:
		t.handleLookup(ctx, msg, command, args)
	}
}

// admitChat enforces the group-only policy: private chats serve only the
// informational commands unless the user is privileged.
func (t *Telegram) admitChat(ctx context.Context, msg *tgbotapi.Message, command string) bool {
	if !t.cfg.General.GroupOnly || !msg.Chat.IsPrivate() {
		return true
	}
	switch command {
	case "start", "help", "admin":
		return true
	}
	if t.gate.IsPrivileged(ctx, msg.From.ID) {
		return true
	}
	text := "⚠️ This bot works in groups only."
	if t.cfg.General.RedirectBot != "" {
		text += "\nFor personal use: " + t.cfg.General.RedirectBot
	}
	t.reply(ctx, msg.Chat.ID, text, domain.SendOptions{})
	return false
}

// admitUser runs the gate and presents the denial prompt when needed.
func (t *Telegram) admitUser(ctx context.Context, msg *tgbotapi.Message) bool {
	decision := t.gate.Admit(ctx, msg.From.ID)
	if decision.Admitted {
		return true
	}
	switch decision.Reason {
	case gate.ReasonBanned:
		t.reply(ctx, msg.Chat.ID, "❌ You are banned. Contact an admin.", domain.SendOptions{})
	case gate.ReasonNotJoined:
		t.reply(ctx, msg.Chat.ID, "⚠️ Join these channels to use the bot:", domain.SendOptions{
			Buttons: joinKeyboard(decision.Missing),
		})
	}
	return false
}

func joinKeyboard(missing []config.ForceJoinChannel) [][]domain.Button {
	var rows [][]domain.Button
	for _, ch := range missing {
		rows = append(rows, []domain.Button{{Label: "Join " + ch.Name, URL: ch.Link}})
	}
	rows = append(rows, []domain.Button{{Label: "✅ I've joined", Data: "verify_join"}})
	return rows
}

func (t *Telegram) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if !t.admitUser(ctx, msg) {
		return
	}
	welcome := fmt.Sprintf("👋 *Welcome %s!*\n\n%s", msg.From.FirstName, t.commandsList())
	t.reply(ctx, msg.Chat.ID, welcome, domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	if !t.admitUser(ctx, msg) {
		return
	}
	t.reply(ctx, msg.Chat.ID, t.commandsList(), domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

func (t *Telegram) handleAdminHelp(ctx context.Context, msg *tgbotapi.Message) {
	if !t.gate.IsPrivileged(ctx, msg.From.ID) {
		t.reply(ctx, msg.Chat.ID, "❌ This command is for admins only.", domain.SendOptions{})
		return
	}
	t.reply(ctx, msg.Chat.ID, adminCommandsList(t.cfg.Branding.Footer), domain.SendOptions{ParseMode: domain.ModeMarkdown})
}

// handleLookup runs the pipeline for a registry command.
func (t *Telegram) handleLookup(ctx context.Context, msg *tgbotapi.Message, command, args string) {
	spec, known := t.registry.Get(command)
	if !known {
		t.reply(ctx, msg.Chat.ID, "❌ Command not found.", domain.SendOptions{})
		return
	}
	if !t.admitUser(ctx, msg) {
		return
	}
	if args == "" {
		t.reply(ctx, msg.Chat.ID, fmt.Sprintf("Usage: `/%s <%s>`", spec.Name, spec.Param),
			domain.SendOptions{ParseMode: domain.ModeMarkdown})
		return
	}

	t.pipe.Handle(ctx, pipeline.Invocation{
		UserID:   msg.From.ID,
		Username: msg.From.UserName,
		ChatID:   msg.Chat.ID,
		Command:  spec.Name,
		Query:    args,
	})
}

// --- broadcast / DM conversation ---

func (t *Telegram) handleConversationEntry(ctx context.Context, msg *tgbotapi.Message, command, args string) {
	if !t.gate.IsPrivileged(ctx, msg.From.ID) {
		t.reply(ctx, msg.Chat.ID, "❌ Admin only.", domain.SendOptions{})
		return
	}

	switch command {
	case "broadcast":
		t.sessions.Enter(msg.From.ID, msg.Chat.ID, convo.ModeAll, nil)
		t.reply(ctx, msg.Chat.ID, "Send the message to broadcast.\nSend /cancel to abort.", domain.SendOptions{})
	case "dm":
		target, err := strconv.ParseInt(args, 10, 64)
		if err != nil {
			t.reply(ctx, msg.Chat.ID, "Usage: /dm <user_id>", domain.SendOptions{})
			return
		}
		t.sessions.Enter(msg.From.ID, msg.Chat.ID, convo.ModeSingle, []int64{target})
		t.reply(ctx, msg.Chat.ID, fmt.Sprintf("Send message for %d.\nSend /cancel to abort.", target), domain.SendOptions{})
	case "bulkdm":
		fields := strings.Fields(args)
		if len(fields) == 0 {
			t.reply(ctx, msg.Chat.ID, "Usage: /bulkdm <id1> <id2> ...", domain.SendOptions{})
			return
		}
		targets := make([]int64, 0, len(fields))
		for _, f := range fields {
			id, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				t.reply(ctx, msg.Chat.ID, "Invalid ID: "+f, domain.SendOptions{})
				return
			}
			targets = append(targets, id)
		}
		t.sessions.Enter(msg.From.ID, msg.Chat.ID, convo.ModeBulk, targets)
		t.reply(ctx, msg.Chat.ID, fmt.Sprintf("Send message for %d users.\nSend /cancel to abort.", len(targets)), domain.SendOptions{})
	}
}

func (t *Telegram) receivePayload(ctx context.Context, msg *tgbotapi.Message) {
	report, ok, err := t.sessions.Dispatch(ctx, msg.From.ID, msg.Chat.ID, msg.MessageID)
	if !ok {
		return
	}
	if err != nil {
		t.reply(ctx, msg.Chat.ID, "❌ Could not resolve the recipient list. Nothing was sent.", domain.SendOptions{})
		return
	}
	t.reply(ctx, msg.Chat.ID,
		fmt.Sprintf("✅ Done.\nSuccess: %d\nFailed: %d", report.Success, report.Failed),
		domain.SendOptions{})
}

func (t *Telegram) handleCancel(ctx context.Context, msg *tgbotapi.Message) {
	if t.sessions.Cancel(msg.From.ID, msg.Chat.ID) {
		t.reply(ctx, msg.Chat.ID, "Cancelled.", domain.SendOptions{})
		return
	}
	t.reply(ctx, msg.Chat.ID, "Nothing to cancel.", domain.SendOptions{})
}

// --- callbacks ---

func (t *Telegram) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	chatID := cq.Message.Chat.ID

	if _, err := t.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		t.logger.Debug("callback ack failed", "err", err)
	}

	data := cq.Data
	switch {
	case data == "verify_join":
		t.handleVerifyJoin(ctx, cq)
	case strings.HasPrefix(data, "copy:"):
		token := strings.TrimPrefix(data, "copy:")
		payload, ok := t.cache.Take(token)
		if !ok {
			t.reply(ctx, chatID, "❌ Copy data expired.", domain.SendOptions{})
			return
		}
		t.reply(ctx, chatID, "```json\n"+payload.Render()+"\n```",
			domain.SendOptions{ParseMode: domain.ModeMarkdown})
	case strings.HasPrefix(data, "search:"):
		name := strings.TrimPrefix(data, "search:")
		hint := "query"
		if spec, ok := t.registry.Get(name); ok {
			hint = spec.Param
		}
		t.reply(ctx, chatID, fmt.Sprintf("Send `/%s <%s>` with your query.", name, hint),
			domain.SendOptions{ParseMode: domain.ModeMarkdown})
	}
}

func (t *Telegram) handleVerifyJoin(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID
	decision := t.gate.Admit(ctx, cq.From.ID)
	if decision.Admitted {
		edit := tgbotapi.NewEditMessageText(chatID, cq.Message.MessageID, "✅ Verification successful!")
		if _, err := t.bot.Send(edit); err != nil {
			t.logger.Warn("verify edit failed", "err", err)
		}
		return
	}

	text, buttons := verifyDenial(decision)
	edit := tgbotapi.NewEditMessageText(chatID, cq.Message.MessageID, text)
	if markup, ok := keyboard(buttons); ok {
		edit.ReplyMarkup = &markup
	}
	if _, err := t.bot.Send(edit); err != nil {
		t.logger.Warn("verify edit failed", "err", err)
	}
}

// verifyDenial maps a failed re-verification to the edit text and keyboard.
// A banned user gets no keyboard; joining channels cannot lift a ban.
func verifyDenial(decision gate.Decision) (string, [][]domain.Button) {
	if decision.Reason == gate.ReasonBanned {
		return "❌ You are banned. Contact an admin.", nil
	}
	return "⚠️ You still have channels left to join:", joinKeyboard(decision.Missing)
}

// --- group tracking ---

func (t *Telegram) handleGroupMembership(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	if !upd.Chat.IsGroup() && !upd.Chat.IsSuperGroup() {
		return
	}
	if upd.NewChatMember.User == nil || upd.NewChatMember.User.ID != t.bot.Self.ID {
		return
	}

	switch upd.NewChatMember.Status {
	case "administrator":
		link, err := t.bot.GetInviteLink(tgbotapi.ChatInviteLinkConfig{
			ChatConfig: tgbotapi.ChatConfig{ChatID: upd.Chat.ID},
		})
		if err != nil {
			t.logger.Warn("cannot export invite link", "chat_id", upd.Chat.ID, "err", err)
		}
		title := upd.Chat.Title
		if title == "" {
			title = "Unnamed"
		}
		if err := t.store.AddGroup(ctx, upd.Chat.ID, title, link); err != nil {
			t.logger.Error("failed to record group", "chat_id", upd.Chat.ID, "err", err)
		}
	case "left", "kicked":
		if err := t.store.RemoveGroup(ctx, upd.Chat.ID); err != nil {
			t.logger.Error("failed to remove group", "chat_id", upd.Chat.ID, "err", err)
		}
	}
}

// --- helpers ---

func (t *Telegram) reply(ctx context.Context, chatID int64, text string, opts domain.SendOptions) {
	if err := t.SendMessage(ctx, chatID, text, opts); err != nil {
		t.logger.Error("telegram send failed", "chat_id", chatID, "err", err)
	}
}

func (t *Telegram) commandsList() string {
	lines := []string{"📋 *AVAILABLE COMMANDS*", strings.Repeat("─", 28)}
	for _, spec := range t.registry.All() {
		lines = append(lines, fmt.Sprintf("• `/%s [%s]` → %s", spec.Name, spec.Param, spec.Desc))
	}
	if t.cfg.Branding.Footer != "" {
		lines = append(lines, t.cfg.Branding.Footer)
	}
	return strings.Join(lines, "\n")
}
