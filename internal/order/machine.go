// Package order drives a user through the product/quantity/quality/confirm/
// comment flow and hands the finalized order to the operator.
package order

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"storebot/core/logger"
	"storebot/core/telegram/keyboard"
	"storebot/internal/catalog"
	"storebot/internal/chatlog"
	"storebot/internal/gateway"
	"storebot/internal/session"
)

// Callback actions the bot layer registers for the order flow keyboards.
const (
	ActionProduct  = "order_product"
	ActionQuantity = "order_quantity"
	ActionQuality  = "order_quality"
	ActionConfirm  = "order_confirm"
	ActionRestart  = "order_restart"
)

const (
	msgChooseProduct  = "Choose a product:"
	msgChooseQuantity = "Choose a quantity for %s:"
	msgChooseQuality  = "Choose a quality:"
	msgAskComment     = "Send a delivery comment: district, landmark, preferred time."
	msgOrderAccepted  = "Order received. The operator will contact you shortly."
)

// Machine is the per-user order flow. Selection events that do not match the
// user's current step are dropped, not answered: keyboards only offer valid
// choices, so a mismatch means a stale button press.
type Machine struct {
	store      *session.Store
	cat        *catalog.Catalog
	gw         gateway.Gateway
	logs       *chatlog.Service
	operatorID int64
}

// NewMachine wires the order flow over the shared stores and transport.
func NewMachine(store *session.Store, cat *catalog.Catalog, gw gateway.Gateway, logs *chatlog.Service, operatorID int64) *Machine {
	return &Machine{
		store:      store,
		cat:        cat,
		gw:         gw,
		logs:       logs,
		operatorID: operatorID,
	}
}

// Start discards any in-progress draft and opens a fresh one at the product
// step. Also serves the wildcard restart from every non-terminal step.
func (m *Machine) Start(ctx context.Context, userID int64) error {
	m.store.BeginOrder(userID)
	_, err := m.gw.SendText(userID, msgChooseProduct, m.productMenu())
	return err
}

// ChooseProduct advances the draft past product selection. Unknown products
// and out-of-step events are ignored.
func (m *Machine) ChooseProduct(ctx context.Context, userID int64, name string) error {
	if _, ok := m.draftAt(userID, session.StepProduct); !ok {
		return nil
	}
	p, ok := m.cat.Product(name)
	if !ok {
		return nil
	}
	m.store.UpdateDraft(userID, func(d *session.Draft) {
		d.Product = name
		d.Step = session.StepQuantity
	})
	m.showProductPhoto(ctx, userID, p)

	btns := make([]keyboard.InlineBtn, 0, len(p.Tiers))
	for _, t := range p.Tiers {
		btns = append(btns, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s — %d", t.Label, t.Price),
			Unique: ActionQuantity,
			Data:   t.Label,
		})
	}
	_, err := m.gw.SendText(userID, fmt.Sprintf(msgChooseQuantity, name), keyboard.InlineButtons(btns))
	return err
}

// ChooseQuantity advances past quantity selection. The tier must belong to
// the product already chosen in the draft.
func (m *Machine) ChooseQuantity(ctx context.Context, userID int64, tier string) error {
	d, ok := m.draftAt(userID, session.StepQuantity)
	if !ok {
		return nil
	}
	if _, err := m.cat.BasePrice(d.Product, tier); err != nil {
		return nil
	}
	m.store.UpdateDraft(userID, func(d *session.Draft) {
		d.Quantity = tier
		d.Step = session.StepQuality
	})

	q := m.cat.Quality()
	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "Standard", Unique: ActionQuality, Data: "0"},
		{Text: q.Label, Unique: ActionQuality, Data: "1"},
	})
	_, err := m.gw.SendText(userID, msgChooseQuality, markup)
	return err
}

// ChooseQuality prices the draft and asks for confirmation.
func (m *Machine) ChooseQuality(ctx context.Context, userID int64, upgrade bool) error {
	d, ok := m.draftAt(userID, session.StepQuality)
	if !ok {
		return nil
	}
	price, err := m.cat.Price(d.Product, d.Quantity, upgrade)
	if err != nil {
		return nil
	}
	m.store.UpdateDraft(userID, func(d *session.Draft) {
		d.Quality = upgrade
		d.Price = price
		d.Step = session.StepConfirm
	})

	text := fmt.Sprintf("Your order:\nProduct: %s\nQuantity: %s\nQuality: %s\nPrice: %d\n\nConfirm?",
		d.Product, d.Quantity, m.qualityLabel(upgrade), price)
	markup := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: "✅ Confirm", Unique: ActionConfirm, Data: "1"}},
		[]keyboard.InlineBtn{{Text: "🔄 Start over", Unique: ActionRestart, Data: "1"}},
	)
	_, err = m.gw.SendText(userID, text, markup)
	return err
}

// Confirm moves the draft to the comment step.
func (m *Machine) Confirm(ctx context.Context, userID int64) error {
	if _, ok := m.draftAt(userID, session.StepConfirm); !ok {
		return nil
	}
	m.store.UpdateDraft(userID, func(d *session.Draft) {
		d.Step = session.StepComment
	})
	_, err := m.gw.SendText(userID, msgAskComment, nil)
	return err
}

// Restart discards the draft and re-renders the product menu.
func (m *Machine) Restart(ctx context.Context, userID int64) error {
	return m.Start(ctx, userID)
}

// SubmitComment finalizes the order with the user's free-form comment,
// notifies the operator and returns the user to idle. The comment is taken
// verbatim, empty included.
func (m *Machine) SubmitComment(ctx context.Context, userID int64, text string) error {
	d, ok := m.draftAt(userID, session.StepComment)
	if !ok {
		return nil
	}
	ord := session.Order{
		UserID:   userID,
		Product:  d.Product,
		Quantity: d.Quantity,
		Quality:  d.Quality,
		Price:    d.Price,
		Comment:  text,
		PlacedAt: time.Now().UTC(),
	}
	m.store.Finalize(userID, ord)
	m.logs.Append(ctx, userID, chatlog.ActorUser, text)

	contact := m.store.ContactOf(userID)
	summary := fmt.Sprintf("New order from %s\nProduct: %s\nQuantity: %s\nQuality: %s\nPrice: %d\nComment: %s",
		contact.Label(), ord.Product, ord.Quantity, m.qualityLabel(ord.Quality), ord.Price, ord.Comment)
	if _, err := m.gw.SendText(m.operatorID, summary, nil); err != nil {
		logger.Warn(ctx, "service.orders", "order.notify",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}

	logger.Info(ctx, "service.orders", "order.finalized",
		slog.Int64("user_id", userID),
		slog.String("product", ord.Product),
		slog.String("quantity", ord.Quantity),
		slog.Bool("quality", ord.Quality),
		slog.Int64("price", ord.Price),
		slog.Int("comment_len", len(ord.Comment)),
	)

	_, err := m.gw.SendText(userID, msgOrderAccepted, nil)
	return err
}

// Engaged reports whether the user currently has an order flow open.
func (m *Machine) Engaged(userID int64) bool {
	return m.store.ModeOf(userID) == session.ModeOrdering
}

func (m *Machine) productMenu() *tele.ReplyMarkup {
	products := m.cat.Products()
	btns := make([]keyboard.InlineBtn, 0, len(products))
	for _, p := range products {
		btns = append(btns, keyboard.InlineBtn{Text: p.Name, Unique: ActionProduct, Data: p.Name})
	}
	return keyboard.InlineButtons(btns)
}

func (m *Machine) draftAt(userID int64, step session.Step) (session.Draft, bool) {
	d, ok := m.store.DraftOf(userID)
	if !ok || d.Step != step {
		return session.Draft{}, false
	}
	return d, true
}

func (m *Machine) qualityLabel(upgrade bool) string {
	if upgrade {
		return m.cat.Quality().Label
	}
	return "standard"
}

// showProductPhoto sends the product picture and drops the previous one so
// at most one catalog photo stays on screen per user.
func (m *Machine) showProductPhoto(ctx context.Context, userID int64, p catalog.Product) {
	if p.Photo == "" {
		return
	}
	ref, err := m.gw.SendPhoto(userID, gateway.Photo{Path: p.Photo, Caption: p.Name})
	if err != nil {
		logger.Debug(ctx, "service.orders", "order.photo",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("product", p.Name),
			slog.String("err", err.Error()),
		)
		return
	}
	if prev, ok := m.store.SwapPhoto(userID, ref); ok {
		m.gw.BestEffortDelete(prev)
	}
}
