// Package bot assembles the storefront application: registry, routes,
// middlewares and the services behind them.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"storebot/core/logger"
	coretelegram "storebot/core/telegram"
	"storebot/core/telegram/callbacks"
	tgcommands "storebot/core/telegram/commands"
	"storebot/core/telegram/helpers"
	"storebot/core/telegram/keyboard"
	"storebot/core/telegram/router"
	appconfig "storebot/internal/config"

	"storebot/internal/catalog"
	"storebot/internal/chatlog"
	"storebot/internal/gateway"
	"storebot/internal/operator"
	"storebot/internal/order"
	"storebot/internal/relay"
	"storebot/internal/session"
)

// Reply keyboard labels shown on /start.
const (
	btnOrder   = "🛒 Order"
	btnPhotos  = "📷 Photos"
	btnContact = "✉️ Contact operator"
)

const msgUnrecognized = "I did not get that. Use the menu below or /start."

// App is the assembled storefront bot.
type App struct {
	cfg *appconfig.Config

	cat     *catalog.Catalog
	store   *session.Store
	logs    *chatlog.Service
	gw      *gateway.Telebot
	machine *order.Machine
	rel     *relay.Service
	ops     *operator.Handlers

	bot *tele.Bot
}

// New builds the application services. db may be nil unless the postgres
// chat log backend is configured.
func New(cfg *appconfig.Config, db *sqlx.DB) (*App, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	files, err := chatlog.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}
	var logStore chatlog.LogStore = files
	if cfg.Storage.Backend == appconfig.BackendPostgres {
		if db == nil {
			return nil, fmt.Errorf("bot: postgres chat log backend configured but no database connected")
		}
		logStore = chatlog.NewPostgresStore(db)
	}
	logs := chatlog.NewService(logStore, files)

	store := session.NewStore()
	gw := gateway.NewTelebot(nil, nil)
	operatorID := cfg.Core.Telegram.OperatorID
	rel := relay.NewService(store, gw, logs, operatorID)

	return &App{
		cfg:     cfg,
		cat:     cat,
		store:   store,
		logs:    logs,
		gw:      gw,
		machine: order.NewMachine(store, cat, gw, logs, operatorID),
		rel:     rel,
		ops:     operator.NewHandlers(store, rel, logs, gw),
	}, nil
}

// TelegramRunOptions wires the registry, routes and middlewares for the
// shared runner.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	a.registerCommands(reg)
	if err := a.registerCallbacks(reg); err != nil {
		return coretelegram.RunOptions{}, err
	}
	reg.SetTextFallback(a.handleMenuText)

	core := a.cfg.CoreConfig()
	operatorID := core.Telegram.OperatorID

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		OperatorID: operatorID,
	})
	routes = append(routes, router.TextRoutes(a, reg, router.TextOptions{
		UnknownPhoto: a.handleLoosePhoto,
	})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	middlewares := coretelegram.DefaultMiddlewares(core, nil)
	middlewares = append(middlewares, coretelegram.Middleware{
		Name: "access",
		Use:  a.accessMiddleware(operatorID),
	})

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    reg,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.bot = rt.Bot
			a.gw.Bind(rt.Bot, rt.Dispatcher)
			if err := a.logs.Warm(ctx); err != nil {
				return err
			}
			return nil
		},
	}, nil
}

func (a *App) registerCommands(reg *coretelegram.Registry) {
	reg.RegisterCommand("/start", tgcommands.Command{
		Handler:     a.handleStart,
		Description: "Show the storefront menu",
	})
	reg.RegisterCommand("/order", tgcommands.Command{
		Handler:     a.handleOrder,
		Description: "Start a new order",
	})

	operatorCmds := map[string]struct {
		handler     tele.HandlerFunc
		description string
	}{
		"/ban":     {a.ops.Ban, "Ban a user"},
		"/unban":   {a.ops.Unban, "Unban a user"},
		"/clear":   {a.ops.Clear, "Erase a user's chat history"},
		"/history": {a.ops.History, "Show a user's chat history"},
		"/payment": {a.ops.Payment, "Send a payment request"},
		"/reply":   {a.ops.Reply, "Reply to a user"},
		"/pending": {a.ops.Pending, "List unanswered users"},
		"/photo":   {a.ops.Photo, "Fetch a stored photo"},
	}
	for name, cmd := range operatorCmds {
		reg.RegisterCommand(name, tgcommands.Command{
			Handler:      cmd.handler,
			Description:  cmd.description,
			OperatorOnly: true,
			Hidden:       true,
		})
	}
}

func (a *App) registerCallbacks(reg *coretelegram.Registry) error {
	register := func(key string, h tele.HandlerFunc) error {
		return reg.RegisterCallback(key, h)
	}
	if err := register(order.ActionProduct, func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		return a.machine.ChooseProduct(ctx, c.Sender().ID, callbacks.CallbackPayload(c))
	}); err != nil {
		return err
	}
	if err := register(order.ActionQuantity, func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		return a.machine.ChooseQuantity(ctx, c.Sender().ID, callbacks.CallbackPayload(c))
	}); err != nil {
		return err
	}
	if err := register(order.ActionQuality, func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		return a.machine.ChooseQuality(ctx, c.Sender().ID, callbacks.CallbackPayload(c) == "1")
	}); err != nil {
		return err
	}
	if err := register(order.ActionConfirm, func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		return a.machine.Confirm(ctx, c.Sender().ID)
	}); err != nil {
		return err
	}
	return register(order.ActionRestart, func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		return a.machine.Restart(ctx, c.Sender().ID)
	})
}

// accessMiddleware records every sender in the conversation store and drops
// banned users without a reply. The operator is exempt from the ban gate.
func (a *App) accessMiddleware(operatorID int64) func(tele.HandlerFunc) tele.HandlerFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil || sender.ID == operatorID {
				return next(c)
			}
			if a.store.IsBanned(sender.ID) {
				logger.Debug(helpers.BuildContext(c), "service.moderation", "moderation.drop",
					slog.Int64("user_id", sender.ID),
				)
				return nil
			}
			a.store.Touch(sender.ID, sender.Username)
			return next(c)
		}
	}
}

// handleStart renders the storefront menu: the assortment, the last stock
// refresh time rounded down to the half hour, and the reply keyboard.
func (a *App) handleStart(c tele.Context) error {
	var b strings.Builder
	b.WriteString("Welcome! In stock today:\n")
	for _, p := range a.cat.Products() {
		b.WriteString("\n" + p.Name + ":")
		for _, t := range p.Tiers {
			fmt.Fprintf(&b, "\n  %s — %d", t.Label, t.Price)
		}
	}
	fmt.Fprintf(&b, "\n\nStock refreshed at %s.", lastRefresh(time.Now()))
	menu := keyboard.ReplyButtons(
		[]string{btnOrder},
		[]string{btnPhotos, btnContact},
	)
	return c.Send(b.String(), menu)
}

func (a *App) handleOrder(c tele.Context) error {
	return a.machine.Start(helpers.BuildContext(c), c.Sender().ID)
}

// handleMenuText resolves reply keyboard presses and answers everything
// else with a navigation hint.
func (a *App) handleMenuText(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	switch c.Text() {
	case btnOrder:
		return a.machine.Start(ctx, c.Sender().ID)
	case btnPhotos:
		return a.handlePhotosMenu(c)
	case btnContact:
		return a.rel.RequestContact(ctx, c.Sender().ID)
	}
	return c.Send(msgUnrecognized)
}

func (a *App) handlePhotosMenu(c tele.Context) error {
	sent := 0
	for _, p := range a.cat.Products() {
		if p.Photo == "" {
			continue
		}
		if err := c.Send(&tele.Photo{File: tele.FromDisk(p.Photo), Caption: p.Name}); err != nil {
			return err
		}
		sent++
	}
	if sent == 0 {
		return c.Send("No photos available yet.")
	}
	return nil
}

// Engaged implements router.ModeDispatcher.
func (a *App) Engaged(userID int64) bool {
	return a.store.ModeOf(userID) != session.ModeIdle
}

// HandleText implements router.ModeDispatcher. Only the comment step of an
// order consumes free text; other ordering steps ignore it. Users awaiting
// an operator forward get their message relayed.
func (a *App) HandleText(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	userID := c.Sender().ID
	switch a.store.ModeOf(userID) {
	case session.ModeOrdering:
		if d, ok := a.store.DraftOf(userID); ok && d.Step == session.StepComment {
			return a.machine.SubmitComment(ctx, userID, c.Text())
		}
		return nil
	case session.ModeAwaitingForward:
		return a.rel.ForwardText(ctx, userID, c.Text())
	}
	return nil
}

// HandlePhoto implements router.ModeDispatcher. Photos only matter while a
// forward is armed; during an order they are dropped.
func (a *App) HandlePhoto(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	userID := c.Sender().ID
	if a.store.ModeOf(userID) != session.ModeAwaitingForward {
		return nil
	}
	msg := c.Message()
	if msg == nil || msg.Photo == nil {
		return nil
	}
	ref := a.storePhotoBlob(ctx, userID, msg.Photo)
	return a.rel.ForwardPhoto(ctx, userID, gateway.Photo{
		FileID:  msg.Photo.FileID,
		Caption: msg.Caption,
	}, ref)
}

// handleLoosePhoto catches photos from users who are not in any flow. The
// operator may attach a photo to a /reply directive via the caption.
func (a *App) handleLoosePhoto(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	sender := c.Sender()
	msg := c.Message()
	if sender == nil || msg == nil || msg.Photo == nil {
		return nil
	}
	if sender.ID == a.cfg.Core.Telegram.OperatorID {
		payload, ok := replyPayload(msg.Caption)
		if !ok {
			return nil
		}
		ref := a.storePhotoBlob(ctx, sender.ID, msg.Photo)
		return a.ops.ReplyPhoto(c, payload, gateway.Photo{FileID: msg.Photo.FileID}, ref)
	}
	return c.Send(msgUnrecognized)
}

// replyPayload extracts the argument part of a "/reply ..." caption.
func replyPayload(caption string) (string, bool) {
	if !strings.HasPrefix(caption, "/reply") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(caption, "/reply")), true
}

// storePhotoBlob downloads the photo and saves it to the blob store.
// Returns an empty ref when anything fails; the forward still proceeds.
func (a *App) storePhotoBlob(ctx context.Context, userID int64, photo *tele.Photo) string {
	if a.bot == nil {
		return ""
	}
	rc, err := a.bot.File(&photo.File)
	if err != nil {
		logger.Warn(ctx, "service.chatlog", "photo.fetch",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return ""
	}
	defer rc.Close()
	ref, err := a.logs.SavePhoto(userID, rc)
	if err != nil {
		logger.Warn(ctx, "service.chatlog", "photo.store",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return ""
	}
	return ref
}

// lastRefresh rounds t down to the previous half hour.
func lastRefresh(t time.Time) string {
	return t.Truncate(30 * time.Minute).Format("15:04")
}
