package bot

import (
	"fmt"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"storebot/internal/catalog"
	"storebot/internal/chatlog"
	"storebot/internal/gateway"
	"storebot/internal/operator"
	"storebot/internal/order"
	"storebot/internal/relay"
	"storebot/internal/session"
)

const testOperatorID int64 = 99

type fakeGateway struct {
	next  int
	texts map[int64][]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{texts: map[int64][]string{}}
}

func (g *fakeGateway) SendText(userID int64, text string, _ *tele.ReplyMarkup) (gateway.Ref, error) {
	g.next++
	g.texts[userID] = append(g.texts[userID], text)
	return gateway.Ref{ChatID: userID, MessageID: g.next}, nil
}

func (g *fakeGateway) SendPhoto(userID int64, _ gateway.Photo) (gateway.Ref, error) {
	g.next++
	return gateway.Ref{ChatID: userID, MessageID: g.next}, nil
}

func (g *fakeGateway) Delete(gateway.Ref) error { return nil }

func (g *fakeGateway) BestEffortDelete(gateway.Ref) {}

// userCtx is the minimal tele.Context surface the text routes touch.
type userCtx struct {
	tele.Context
	user *tele.User
	text string
	vals map[string]interface{}
	sent []string
}

func newUserCtx(id int64, username, text string) *userCtx {
	return &userCtx{
		user: &tele.User{ID: id, Username: username},
		text: text,
		vals: map[string]interface{}{},
	}
}

func (c *userCtx) Sender() *tele.User { return c.user }

func (c *userCtx) Chat() *tele.Chat { return &tele.Chat{ID: c.user.ID} }

func (c *userCtx) Update() tele.Update { return tele.Update{ID: 1} }

func (c *userCtx) Message() *tele.Message {
	return &tele.Message{Sender: c.user, Text: c.text}
}

func (c *userCtx) Text() string { return c.text }

func (c *userCtx) Get(key string) interface{} { return c.vals[key] }

func (c *userCtx) Set(key string, v interface{}) { c.vals[key] = v }

func (c *userCtx) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, fmt.Sprint(what))
	return nil
}

func testApp(t *testing.T) (*App, *fakeGateway) {
	t.Helper()
	fs, err := chatlog.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	logs := chatlog.NewService(fs, fs)
	cat, err := catalog.New([]catalog.Product{
		{Name: "A", Tiers: []catalog.Tier{{Label: "1", Price: 1000}}},
	}, catalog.Quality{})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	store := session.NewStore()
	gw := newFakeGateway()
	rel := relay.NewService(store, gw, logs, testOperatorID)
	return &App{
		cat:     cat,
		store:   store,
		logs:    logs,
		machine: order.NewMachine(store, cat, gw, logs, testOperatorID),
		rel:     rel,
		ops:     operator.NewHandlers(store, rel, logs, gw),
	}, gw
}

func TestBanGateSilencesUser(t *testing.T) {
	app, gw := testApp(t)
	handler := app.accessMiddleware(testOperatorID)(app.handleMenuText)

	press := func() *userCtx {
		c := newUserCtx(12345, "buyer", btnOrder)
		if err := handler(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		return c
	}

	press()
	if got := len(gw.texts[12345]); got != 1 {
		t.Fatalf("messages before ban = %d, want 1", got)
	}

	app.store.SetBanned(12345, true)
	c := press()
	if got := len(gw.texts[12345]); got != 1 {
		t.Fatalf("messages while banned = %d, want 1", got)
	}
	if len(c.sent) != 0 {
		t.Fatalf("banned user got a direct reply: %q", c.sent)
	}
	if app.store.ModeOf(12345) != session.ModeIdle {
		t.Fatal("banned input mutated conversation state")
	}

	app.store.SetBanned(12345, false)
	press()
	if got := len(gw.texts[12345]); got != 2 {
		t.Fatalf("messages after unban = %d, want 2", got)
	}
}

func TestOperatorBypassesBanGate(t *testing.T) {
	app, _ := testApp(t)
	handler := app.accessMiddleware(testOperatorID)(func(tele.Context) error { return nil })

	app.store.SetBanned(testOperatorID, true)
	c := newUserCtx(testOperatorID, "op", "/pending")
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if app.store.ModeOf(testOperatorID) != session.ModeIdle {
		t.Fatal("operator pass-through mutated state")
	}
}

func TestLastRefreshRoundsDown(t *testing.T) {
	cases := []struct {
		at   string
		want string
	}{
		{"2026-03-01T12:29:59Z", "12:00"},
		{"2026-03-01T12:30:00Z", "12:30"},
		{"2026-03-01T12:59:01Z", "12:30"},
		{"2026-03-01T00:14:00Z", "00:00"},
	}
	for _, tc := range cases {
		at, err := time.Parse(time.RFC3339, tc.at)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.at, err)
		}
		if got := lastRefresh(at); got != tc.want {
			t.Errorf("lastRefresh(%s) = %s, want %s", tc.at, got, tc.want)
		}
	}
}

func TestReplyPayload(t *testing.T) {
	if p, ok := replyPayload("/reply @user see attached"); !ok || p != "@user see attached" {
		t.Fatalf("payload = %q, ok = %v", p, ok)
	}
	if _, ok := replyPayload("plain caption"); ok {
		t.Fatal("non-directive caption accepted")
	}
	if p, ok := replyPayload("/reply"); !ok || p != "" {
		t.Fatalf("bare directive payload = %q, ok = %v", p, ok)
	}
}
