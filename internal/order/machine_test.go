package order

import (
	"context"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"storebot/internal/catalog"
	"storebot/internal/chatlog"
	"storebot/internal/gateway"
	"storebot/internal/session"
)

const testOperatorID int64 = 99

type sentText struct {
	userID int64
	text   string
	markup *tele.ReplyMarkup
}

type fakeGateway struct {
	next    int
	texts   []sentText
	photos  []gateway.Ref
	deleted []gateway.Ref
}

func (g *fakeGateway) SendText(userID int64, text string, markup *tele.ReplyMarkup) (gateway.Ref, error) {
	g.next++
	g.texts = append(g.texts, sentText{userID: userID, text: text, markup: markup})
	return gateway.Ref{ChatID: userID, MessageID: g.next}, nil
}

func (g *fakeGateway) SendPhoto(userID int64, _ gateway.Photo) (gateway.Ref, error) {
	g.next++
	ref := gateway.Ref{ChatID: userID, MessageID: g.next}
	g.photos = append(g.photos, ref)
	return ref, nil
}

func (g *fakeGateway) Delete(ref gateway.Ref) error {
	g.deleted = append(g.deleted, ref)
	return nil
}

func (g *fakeGateway) BestEffortDelete(ref gateway.Ref) {
	g.deleted = append(g.deleted, ref)
}

func (g *fakeGateway) textsTo(userID int64) []string {
	var out []string
	for _, s := range g.texts {
		if s.userID == userID {
			out = append(out, s.text)
		}
	}
	return out
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Product{
		{Name: "A", Tiers: []catalog.Tier{{Label: "1", Price: 1000}, {Label: "2", Price: 2000}}},
		{Name: "B", Photo: "photos/b.jpg", Tiers: []catalog.Tier{{Label: "1", Price: 500}}},
	}, catalog.Quality{})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return cat
}

func testMachine(t *testing.T) (*Machine, *session.Store, *fakeGateway) {
	t.Helper()
	fs, err := chatlog.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store := session.NewStore()
	gw := &fakeGateway{}
	m := NewMachine(store, testCatalog(t), gw, chatlog.NewService(fs, fs), testOperatorID)
	return m, store, gw
}

func TestOrderFlowStandardQuality(t *testing.T) {
	m, store, gw := testMachine(t)
	ctx := context.Background()
	const userID int64 = 12345
	store.Touch(userID, "buyer")

	if err := m.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.ChooseProduct(ctx, userID, "A"); err != nil {
		t.Fatalf("ChooseProduct: %v", err)
	}
	if err := m.ChooseQuantity(ctx, userID, "1"); err != nil {
		t.Fatalf("ChooseQuantity: %v", err)
	}
	if err := m.ChooseQuality(ctx, userID, false); err != nil {
		t.Fatalf("ChooseQuality: %v", err)
	}
	if err := m.Confirm(ctx, userID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := m.SubmitComment(ctx, userID, "CityX, DistrictY"); err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}

	if mode := store.ModeOf(userID); mode != session.ModeIdle {
		t.Fatalf("mode after finalize = %v, want idle", mode)
	}
	ord, ok := store.LastOrder(userID)
	if !ok {
		t.Fatal("no finalized order")
	}
	if ord.Product != "A" || ord.Quantity != "1" || ord.Quality || ord.Price != 1000 || ord.Comment != "CityX, DistrictY" {
		t.Fatalf("order = %+v", ord)
	}

	summaries := gw.textsTo(testOperatorID)
	if len(summaries) != 1 {
		t.Fatalf("operator received %d messages, want 1", len(summaries))
	}
	for _, want := range []string{"@buyer", "Product: A", "Quantity: 1", "Quality: standard", "Price: 1000", "Comment: CityX, DistrictY"} {
		if !strings.Contains(summaries[0], want) {
			t.Errorf("summary missing %q:\n%s", want, summaries[0])
		}
	}
	user := gw.textsTo(userID)
	if len(user) == 0 || user[len(user)-1] != msgOrderAccepted {
		t.Fatalf("user messages = %v", user)
	}
}

func TestOrderFlowUpgradeTruncatesPrice(t *testing.T) {
	m, store, _ := testMachine(t)
	ctx := context.Background()
	const userID int64 = 7

	m.Start(ctx, userID)
	m.ChooseProduct(ctx, userID, "A")
	m.ChooseQuantity(ctx, userID, "2")
	m.ChooseQuality(ctx, userID, true)

	d, ok := store.DraftOf(userID)
	if !ok {
		t.Fatal("draft missing")
	}
	if d.Price != 2200 {
		t.Fatalf("price = %d, want 2200", d.Price)
	}
	if d.Step != session.StepConfirm {
		t.Fatalf("step = %v, want confirm", d.Step)
	}
}

func TestRestartYieldsFreshDraft(t *testing.T) {
	m, store, gw := testMachine(t)
	ctx := context.Background()
	const userID int64 = 7

	m.Start(ctx, userID)
	m.ChooseProduct(ctx, userID, "A")
	m.ChooseQuantity(ctx, userID, "2")
	m.ChooseQuality(ctx, userID, true)
	if err := m.Restart(ctx, userID); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	d, ok := store.DraftOf(userID)
	if !ok {
		t.Fatal("draft missing after restart")
	}
	if d.Step != session.StepProduct || d.Product != "" || d.Quantity != "" || d.Quality || d.Price != 0 {
		t.Fatalf("residual draft fields after restart: %+v", d)
	}
	texts := gw.textsTo(userID)
	if len(texts) == 0 {
		t.Fatal("no messages sent")
	}
	if last := texts[len(texts)-1]; last != msgChooseProduct {
		t.Fatalf("product menu not re-rendered, last = %q", last)
	}
}

func TestOutOfStepEventsIgnored(t *testing.T) {
	m, store, gw := testMachine(t)
	ctx := context.Background()
	const userID int64 = 7

	// No flow open at all.
	if err := m.ChooseQuantity(ctx, userID, "1"); err != nil {
		t.Fatalf("ChooseQuantity: %v", err)
	}
	if err := m.SubmitComment(ctx, userID, "ignored"); err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}
	if len(gw.texts) != 0 {
		t.Fatalf("ignored events produced %d sends", len(gw.texts))
	}

	// Flow open at product step: quantity/confirm events are stale.
	m.Start(ctx, userID)
	before, _ := store.DraftOf(userID)
	m.ChooseQuantity(ctx, userID, "1")
	m.Confirm(ctx, userID)
	after, _ := store.DraftOf(userID)
	if before != after {
		t.Fatalf("stale events mutated draft: %+v -> %+v", before, after)
	}
}

func TestUnknownSelectionIgnored(t *testing.T) {
	m, store, _ := testMachine(t)
	ctx := context.Background()
	const userID int64 = 7

	m.Start(ctx, userID)
	m.ChooseProduct(ctx, userID, "Z")
	d, _ := store.DraftOf(userID)
	if d.Step != session.StepProduct {
		t.Fatalf("unknown product advanced the draft: %+v", d)
	}

	m.ChooseProduct(ctx, userID, "A")
	m.ChooseQuantity(ctx, userID, "nope")
	d, _ = store.DraftOf(userID)
	if d.Step != session.StepQuantity {
		t.Fatalf("unknown tier advanced the draft: %+v", d)
	}
}

func TestProductPhotoReplacedOnReselect(t *testing.T) {
	m, _, gw := testMachine(t)
	ctx := context.Background()
	const userID int64 = 7

	m.Start(ctx, userID)
	m.ChooseProduct(ctx, userID, "B")
	if len(gw.photos) != 1 {
		t.Fatalf("photos sent = %d, want 1", len(gw.photos))
	}
	first := gw.photos[0]

	m.Restart(ctx, userID)
	m.ChooseProduct(ctx, userID, "B")
	if len(gw.photos) != 2 {
		t.Fatalf("photos sent = %d, want 2", len(gw.photos))
	}
	if len(gw.deleted) != 1 || gw.deleted[0] != first {
		t.Fatalf("previous photo not deleted: %+v", gw.deleted)
	}
}
