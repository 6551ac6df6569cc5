package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"storebot/core/logger"
	"storebot/core/telegram/sender"
)

// Telebot adapts a telebot instance to the Gateway interface. Sends whose
// outcome matters run synchronously; cleanup deletes go through the async
// dispatcher.
type Telebot struct {
	bot  *tele.Bot
	disp *sender.Dispatcher
}

// NewTelebot wires the adapter. The dispatcher may be nil, in which case
// best-effort deletes degrade to synchronous swallowed calls.
func NewTelebot(bot *tele.Bot, disp *sender.Dispatcher) *Telebot {
	return &Telebot{bot: bot, disp: disp}
}

// Bind attaches the live bot instance. Used when the adapter must be wired
// before the bot itself exists; calling any send before Bind panics.
func (g *Telebot) Bind(bot *tele.Bot, disp *sender.Dispatcher) {
	g.bot = bot
	if disp != nil {
		g.disp = disp
	}
}

// SendText implements Gateway.
func (g *Telebot) SendText(userID int64, text string, markup *tele.ReplyMarkup) (Ref, error) {
	to := &tele.User{ID: userID}
	var (
		msg *tele.Message
		err error
	)
	if markup != nil {
		msg, err = g.bot.Send(to, text, markup)
	} else {
		msg, err = g.bot.Send(to, text)
	}
	if err != nil {
		return Ref{}, classifyDelivery(userID, err)
	}
	return Ref{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

// SendPhoto implements Gateway.
func (g *Telebot) SendPhoto(userID int64, photo Photo) (Ref, error) {
	p := &tele.Photo{Caption: photo.Caption}
	switch {
	case photo.FileID != "":
		p.File = tele.File{FileID: photo.FileID}
	case photo.Reader != nil:
		p.File = tele.FromReader(photo.Reader)
	case photo.Path != "":
		p.File = tele.FromDisk(photo.Path)
	default:
		return Ref{}, errors.New("gateway: photo has no source")
	}
	msg, err := g.bot.Send(&tele.User{ID: userID}, p)
	if err != nil {
		return Ref{}, classifyDelivery(userID, err)
	}
	return Ref{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

// Delete implements Gateway.
func (g *Telebot) Delete(ref Ref) error {
	if ref.Zero() {
		return nil
	}
	return g.bot.Delete(tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	})
}

// BestEffortDelete implements Gateway. Failures are logged and dropped.
func (g *Telebot) BestEffortDelete(ref Ref) {
	if ref.Zero() {
		return
	}
	run := func() error { return g.Delete(ref) }
	if g.disp == nil {
		if err := run(); err != nil {
			logger.TG.Debug("stale message delete failed",
				slog.String("event", "delete.stale"),
				slog.Int64("chat_id", ref.ChatID),
				slog.String("err", err.Error()),
			)
		}
		return
	}
	if err := g.disp.Enqueue(logger.Background(), "delete.stale", "deleteMessage", run); err != nil {
		// Queue saturation is not worth failing a user action over.
		logger.TG.Debug("stale message delete dropped",
			slog.String("event", "delete.stale"),
			slog.Int64("chat_id", ref.ChatID),
			slog.String("err", err.Error()),
		)
	}
}

func classifyDelivery(userID int64, err error) error {
	if errors.Is(err, tele.ErrBlockedByUser) {
		return fmt.Errorf("deliver to %d: %w", userID, ErrBlocked)
	}
	return fmt.Errorf("deliver to %d: %w", userID, err)
}
