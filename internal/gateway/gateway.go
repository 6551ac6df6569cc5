// Package gateway abstracts the chat transport behind send/delete
// primitives so domain services stay testable without a live bot.
package gateway

import (
	"errors"
	"io"

	tele "gopkg.in/telebot.v4"
)

// ErrBlocked marks a delivery failure caused by the recipient blocking the
// bot. Callers distinguish it from generic delivery errors when reporting
// back to the operator.
var ErrBlocked = errors.New("gateway: recipient blocked the bot")

// Ref identifies a delivered message so it can be deleted later.
type Ref struct {
	ChatID    int64
	MessageID int
}

// Zero reports whether the reference does not point at a message.
func (r Ref) Zero() bool {
	return r.ChatID == 0 && r.MessageID == 0
}

// Photo describes an outbound photo from one of the supported sources.
// Exactly one of FileID, Path, or Reader should be set.
type Photo struct {
	FileID  string
	Path    string
	Reader  io.Reader
	Caption string
}

// Gateway delivers messages to chat users and removes previously sent ones.
type Gateway interface {
	// SendText delivers text to the user, optionally with a reply markup.
	SendText(userID int64, text string, markup *tele.ReplyMarkup) (Ref, error)
	// SendPhoto delivers a photo with an optional caption.
	SendPhoto(userID int64, photo Photo) (Ref, error)
	// Delete removes a previously delivered message. Deleting an already
	// removed message returns an error the caller is free to ignore.
	Delete(ref Ref) error
	// BestEffortDelete schedules removal without surfacing failures.
	BestEffortDelete(ref Ref)
}
