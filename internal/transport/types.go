// Package transport holds the chat-platform neutral types shared by the bot and its adapters.
package transport

import "context"

// Message is one inbound text message.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id, 0 if none
	FromID       int64
	FromUsername string
	Text         string
}

// Target returns where replies to m should go.
func (m Message) Target() ChatTarget { return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID} }

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// BotCommand is one entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

// Adapter is a chat platform connection. Start delivers inbound messages to out until Stop.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
