package domain

import "context"

// ParseMode selects the formatting applied by the chat platform.
type ParseMode string

const (
	ModePlain    ParseMode = ""
	ModeMarkdown ParseMode = "Markdown"
	ModeHTML     ParseMode = "HTML"
)

// MemberStatus is the chat platform's view of a user in a channel.
type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberKicked        MemberStatus = "kicked"
)

// Joined reports whether the status counts as channel membership.
func (s MemberStatus) Joined() bool {
	return s != MemberLeft && s != MemberKicked && s != ""
}

// Button is one inline keyboard button. Exactly one of URL or Data is set.
type Button struct {
	Label string
	URL   string
	Data  string
}

// SendOptions carries per-message formatting and keyboard attachments.
type SendOptions struct {
	ParseMode ParseMode
	Buttons   [][]Button
}

// Document is a file attachment sent in place of an inline message.
type Document struct {
	Name string
	Data []byte
}

// Messenger is the chat-platform boundary consumed by the gate, the
// pipeline, and the broadcast fan-out. The Telegram channel implements it;
// tests substitute fakes.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) error
	SendDocument(ctx context.Context, chatID int64, doc Document, caption string) error
	ChatMember(ctx context.Context, chatID, userID int64) (MemberStatus, error)
	CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error
}
