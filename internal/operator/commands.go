// Package operator implements the moderation and relay commands available
// only to the configured operator account.
package operator

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"storebot/core/logger"
	"storebot/core/telegram/helpers"
	"storebot/internal/chatlog"
	"storebot/internal/gateway"
	"storebot/internal/relay"
	"storebot/internal/session"
)

// historyPageSize caps entries per history message to stay under transport
// message-size limits.
const historyPageSize = 20

// Handlers hosts the operator command implementations. All of them are
// registered operator-only; non-operators never reach these.
type Handlers struct {
	store *session.Store
	relay *relay.Service
	logs  *chatlog.Service
	gw    gateway.Gateway
}

// NewHandlers wires the operator command set.
func NewHandlers(store *session.Store, rel *relay.Service, logs *chatlog.Service, gw gateway.Gateway) *Handlers {
	return &Handlers{store: store, relay: rel, logs: logs, gw: gw}
}

// Ban adds the target to the ban set. A banned user's input is dropped
// silently until unbanned.
func (h *Handlers) Ban(c tele.Context) error {
	d, usage := parseDirective(c.Message().Payload, false, usageBan)
	if usage != "" {
		return c.Send(usage)
	}
	userID, ok := h.resolve(c, d.Target)
	if !ok {
		return nil
	}
	h.store.SetBanned(userID, true)
	h.logModeration(c, "ban", userID)
	return c.Send(fmt.Sprintf("Banned %s.", h.store.ContactOf(userID).Label()))
}

// Unban removes the target from the ban set.
func (h *Handlers) Unban(c tele.Context) error {
	d, usage := parseDirective(c.Message().Payload, false, usageUnban)
	if usage != "" {
		return c.Send(usage)
	}
	userID, ok := h.resolve(c, d.Target)
	if !ok {
		return nil
	}
	h.store.SetBanned(userID, false)
	h.logModeration(c, "unban", userID)
	return c.Send(fmt.Sprintf("Unbanned %s.", h.store.ContactOf(userID).Label()))
}

// Clear erases the target's chat log and best-effort deletes every tracked
// outbound message to them. Individual delete failures are swallowed.
func (h *Handlers) Clear(c tele.Context) error {
	d, usage := parseDirective(c.Message().Payload, false, usageClear)
	if usage != "" {
		return c.Send(usage)
	}
	userID, ok := h.resolve(c, d.Target)
	if !ok {
		return nil
	}
	h.logs.Erase(helpers.BuildContext(c), userID)
	refs := h.store.TakeTracked(userID)
	for _, ref := range refs {
		h.gw.BestEffortDelete(ref)
	}
	h.logModeration(c, "clear", userID)
	return c.Send(fmt.Sprintf("Cleared history for %s (%d messages removed).", h.store.ContactOf(userID).Label(), len(refs)))
}

// History replays the target's chat log in fixed-size pages, oldest first.
func (h *Handlers) History(c tele.Context) error {
	d, usage := parseDirective(c.Message().Payload, false, usageHistory)
	if usage != "" {
		return c.Send(usage)
	}
	userID, ok := h.resolve(c, d.Target)
	if !ok {
		return nil
	}
	entries := h.logs.History(userID)
	if len(entries) == 0 {
		return c.Send(fmt.Sprintf("History for %s is empty.", h.store.ContactOf(userID).Label()))
	}
	for _, page := range paginate(entries, historyPageSize) {
		lines := make([]string, 0, len(page))
		for _, e := range page {
			lines = append(lines, e.Render())
		}
		if err := c.Send(strings.Join(lines, "\n")); err != nil {
			return err
		}
	}
	return nil
}

// Payment sends the target a payment summary for their finalized order plus
// the supplied link or text.
func (h *Handlers) Payment(c tele.Context) error {
	d, usage := parseDirective(c.Message().Payload, true, usagePayment)
	if usage != "" {
		return c.Send(usage)
	}
	userID, ok := h.resolve(c, d.Target)
	if !ok {
		return nil
	}
	ord, ok := h.store.LastOrder(userID)
	if !ok {
		return c.Send(fmt.Sprintf("No active order for %s.", h.store.ContactOf(userID).Label()))
	}
	quality := "standard"
	if ord.Quality {
		quality = "premium"
	}
	text := fmt.Sprintf("Payment for your order:\nProduct: %s\nQuantity: %s\nQuality: %s\nPrice: %d\n\n%s",
		ord.Product, ord.Quantity, quality, ord.Price, d.Rest)
	ref, err := h.gw.SendText(userID, text, nil)
	if err != nil {
		return c.Send(h.deliveryFailure(d.Target, err))
	}
	h.store.Track(userID, ref)
	h.logs.Append(helpers.BuildContext(c), userID, chatlog.ActorOperator, text)
	return c.Send(fmt.Sprintf("Payment request sent to %s.", h.store.ContactOf(userID).Label()))
}

// Reply delivers a text reply to the target through the relay.
func (h *Handlers) Reply(c tele.Context) error {
	d, usage := parseDirective(c.Message().Payload, true, usageReply)
	if usage != "" {
		return c.Send(usage)
	}
	contact, err := h.relay.DeliverText(helpers.BuildContext(c), d.Target, d.Rest)
	switch {
	case errors.Is(err, session.ErrUnknownRecipient):
		return c.Send(fmt.Sprintf("User not found: %s", d.Target))
	case err != nil:
		return c.Send(h.deliveryFailure(d.Target, err))
	}
	return c.Send(fmt.Sprintf("Delivered to %s.", contact.Label()))
}

// ReplyPhoto delivers an operator photo whose caption carries the reply
// directive. Called from the photo route, not the command router.
func (h *Handlers) ReplyPhoto(c tele.Context, payload string, photo gateway.Photo, storedRef string) error {
	d, usage := parseDirective(payload, false, usageReply)
	if usage != "" {
		return c.Send(usage)
	}
	photo.Caption = d.Rest
	contact, err := h.relay.DeliverPhoto(helpers.BuildContext(c), d.Target, photo, storedRef)
	switch {
	case errors.Is(err, session.ErrUnknownRecipient):
		return c.Send(fmt.Sprintf("User not found: %s", d.Target))
	case err != nil:
		return c.Send(h.deliveryFailure(d.Target, err))
	}
	return c.Send(fmt.Sprintf("Delivered to %s.", contact.Label()))
}

// Pending lists users whose forwarded messages have not been answered yet.
func (h *Handlers) Pending(c tele.Context) error {
	contacts := h.relay.Unanswered()
	if len(contacts) == 0 {
		return c.Send("No unanswered users.")
	}
	lines := make([]string, 0, len(contacts)+1)
	lines = append(lines, fmt.Sprintf("Unanswered (%d):", len(contacts)))
	for _, contact := range contacts {
		lines = append(lines, "- "+contact.Label())
	}
	return c.Send(strings.Join(lines, "\n"))
}

// Photo fetches a stored photo blob by reference and posts it back to the
// operator chat.
func (h *Handlers) Photo(c tele.Context) error {
	d, usage := parseDirective(c.Message().Payload, false, usagePhoto)
	if usage != "" {
		return c.Send(usage)
	}
	rc, err := h.logs.OpenPhoto(d.Target)
	if err != nil {
		return c.Send(fmt.Sprintf("Photo not found: %s", d.Target))
	}
	defer rc.Close()
	return c.Send(&tele.Photo{File: tele.FromReader(rc), Caption: d.Target})
}

func (h *Handlers) resolve(c tele.Context, target string) (int64, bool) {
	userID, err := h.store.Resolve(target)
	if err != nil {
		_ = c.Send(fmt.Sprintf("User not found: %s", target))
		return 0, false
	}
	return userID, true
}

func (h *Handlers) deliveryFailure(target string, err error) string {
	if errors.Is(err, gateway.ErrBlocked) {
		return fmt.Sprintf("Delivery to %s failed: user blocked the bot.", target)
	}
	return fmt.Sprintf("Delivery to %s failed: %v", target, err)
}

func (h *Handlers) logModeration(c tele.Context, action string, userID int64) {
	logger.Info(helpers.BuildContext(c), "service.moderation", "moderation."+action,
		slog.Int64("user_id", userID),
	)
}

// paginate splits entries into pages of at most size each, preserving order.
func paginate(entries []chatlog.Entry, size int) [][]chatlog.Entry {
	if size <= 0 {
		return [][]chatlog.Entry{entries}
	}
	var pages [][]chatlog.Entry
	for start := 0; start < len(entries); start += size {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}
		pages = append(pages, entries[start:end])
	}
	return pages
}
