package relay

import (
	"context"
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"storebot/internal/chatlog"
	"storebot/internal/gateway"
	"storebot/internal/session"
)

const testOperatorID int64 = 99

type sentText struct {
	userID int64
	text   string
}

type fakeGateway struct {
	next    int
	texts   []sentText
	photos  []int64
	tracked []gateway.Ref
	sendErr map[int64]error
}

func (g *fakeGateway) SendText(userID int64, text string, _ *tele.ReplyMarkup) (gateway.Ref, error) {
	if err := g.sendErr[userID]; err != nil {
		return gateway.Ref{}, err
	}
	g.next++
	g.texts = append(g.texts, sentText{userID: userID, text: text})
	return gateway.Ref{ChatID: userID, MessageID: g.next}, nil
}

func (g *fakeGateway) SendPhoto(userID int64, _ gateway.Photo) (gateway.Ref, error) {
	if err := g.sendErr[userID]; err != nil {
		return gateway.Ref{}, err
	}
	g.next++
	g.photos = append(g.photos, userID)
	return gateway.Ref{ChatID: userID, MessageID: g.next}, nil
}

func (g *fakeGateway) Delete(ref gateway.Ref) error { return nil }

func (g *fakeGateway) BestEffortDelete(ref gateway.Ref) {}

func (g *fakeGateway) textsTo(userID int64) []string {
	var out []string
	for _, s := range g.texts {
		if s.userID == userID {
			out = append(out, s.text)
		}
	}
	return out
}

func testRelay(t *testing.T) (*Service, *session.Store, *fakeGateway, *chatlog.Service) {
	t.Helper()
	fs, err := chatlog.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store := session.NewStore()
	gw := &fakeGateway{sendErr: map[int64]error{}}
	logs := chatlog.NewService(fs, fs)
	return NewService(store, gw, logs, testOperatorID), store, gw, logs
}

func TestForwardIsSingleShot(t *testing.T) {
	svc, store, gw, _ := testRelay(t)
	ctx := context.Background()
	const userID int64 = 5
	store.Touch(userID, "asker")

	if err := svc.RequestContact(ctx, userID); err != nil {
		t.Fatalf("RequestContact: %v", err)
	}
	if !svc.Engaged(userID) {
		t.Fatal("user not armed after contact request")
	}
	if err := svc.ForwardText(ctx, userID, "where is my order?"); err != nil {
		t.Fatalf("ForwardText: %v", err)
	}

	inbox := gw.textsTo(testOperatorID)
	if len(inbox) != 1 {
		t.Fatalf("operator inbox = %d messages, want 1", len(inbox))
	}
	if !strings.Contains(inbox[0], "@asker") || !strings.Contains(inbox[0], "where is my order?") {
		t.Fatalf("forward header wrong: %q", inbox[0])
	}
	if svc.Engaged(userID) {
		t.Fatal("user still armed after forward")
	}

	// Second message without re-arming is dropped.
	if err := svc.ForwardText(ctx, userID, "hello again"); err != nil {
		t.Fatalf("ForwardText: %v", err)
	}
	if got := len(gw.textsTo(testOperatorID)); got != 1 {
		t.Fatalf("unarmed message was forwarded, inbox = %d", got)
	}
}

func TestForwardMarksUnanswered(t *testing.T) {
	svc, store, _, logs := testRelay(t)
	ctx := context.Background()
	const userID int64 = 5
	store.Touch(userID, "asker")

	svc.RequestContact(ctx, userID)
	svc.ForwardText(ctx, userID, "ping")

	pending := svc.Unanswered()
	if len(pending) != 1 || pending[0].UserID != userID {
		t.Fatalf("unanswered = %+v", pending)
	}
	hist := logs.History(userID)
	if len(hist) != 1 || hist[0].Actor != chatlog.ActorUser || hist[0].Body != "ping" {
		t.Fatalf("history = %+v", hist)
	}

	if _, err := svc.DeliverText(ctx, "asker", "pong"); err != nil {
		t.Fatalf("DeliverText: %v", err)
	}
	if pending := svc.Unanswered(); len(pending) != 0 {
		t.Fatalf("unanswered after reply = %+v", pending)
	}
	hist = logs.History(userID)
	if len(hist) != 2 || hist[1].Actor != chatlog.ActorOperator || hist[1].Body != "pong" {
		t.Fatalf("history after reply = %+v", hist)
	}
}

func TestDeliverResolvesHandleAndID(t *testing.T) {
	svc, store, gw, _ := testRelay(t)
	ctx := context.Background()
	store.Touch(5, "asker")

	if _, err := svc.DeliverText(ctx, "@Asker", "by handle"); err != nil {
		t.Fatalf("DeliverText by handle: %v", err)
	}
	if _, err := svc.DeliverText(ctx, "5", "by id"); err != nil {
		t.Fatalf("DeliverText by id: %v", err)
	}
	if got := gw.textsTo(5); len(got) != 2 {
		t.Fatalf("delivered = %v", got)
	}

	_, err := svc.DeliverText(ctx, "stranger", "nope")
	if !errors.Is(err, session.ErrUnknownRecipient) {
		t.Fatalf("unknown handle error = %v", err)
	}
	if got := len(gw.texts); got != 2 {
		t.Fatalf("delivery attempted despite resolution failure, sends = %d", got)
	}
}

func TestDeliverReportsBlocked(t *testing.T) {
	svc, store, gw, _ := testRelay(t)
	ctx := context.Background()
	store.Touch(5, "asker")
	store.SetUnanswered(5, true)
	gw.sendErr[5] = gateway.ErrBlocked

	_, err := svc.DeliverText(ctx, "asker", "hi")
	if !errors.Is(err, gateway.ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	// Failed delivery must not clear the unanswered marker.
	if pending := svc.Unanswered(); len(pending) != 1 {
		t.Fatalf("unanswered after failed delivery = %+v", pending)
	}
}

func TestDeliveredRefsAreTracked(t *testing.T) {
	svc, store, _, _ := testRelay(t)
	ctx := context.Background()
	store.Touch(5, "asker")

	svc.DeliverText(ctx, "5", "one")
	svc.DeliverText(ctx, "5", "two")

	refs := store.TakeTracked(5)
	if len(refs) != 2 {
		t.Fatalf("tracked refs = %+v", refs)
	}
}

func TestRequestContactDiscardsDraft(t *testing.T) {
	svc, store, _, _ := testRelay(t)
	ctx := context.Background()
	const userID int64 = 5

	store.BeginOrder(userID)
	svc.RequestContact(ctx, userID)
	if mode := store.ModeOf(userID); mode != session.ModeAwaitingForward {
		t.Fatalf("mode = %v, want awaiting-forward", mode)
	}
	if _, ok := store.DraftOf(userID); ok {
		t.Fatal("draft survived contact request")
	}
}
