// Package session keeps the per-user conversation state: moderation flags,
// the current conversation mode, the in-flight order draft, and the handle
// index used to resolve operator command targets. Everything lives in
// process memory; only chat history persists elsewhere.
package session

import (
	"strconv"
	"time"

	"storebot/internal/gateway"
)

// Mode tags what the next free-form input from a user means. A user is in
// exactly one mode; an order draft and a pending operator forward can never
// coexist.
type Mode int

const (
	// ModeIdle means no conversation flow is active.
	ModeIdle Mode = iota
	// ModeOrdering means an order draft is in progress.
	ModeOrdering
	// ModeAwaitingForward means the next message is forwarded to the operator.
	ModeAwaitingForward
)

// Step is the position inside the order flow.
type Step int

const (
	// StepProduct waits for a product selection.
	StepProduct Step = iota
	// StepQuantity waits for a quantity tier selection.
	StepQuantity
	// StepQuality waits for the quality upgrade decision.
	StepQuality
	// StepConfirm waits for confirm or restart.
	StepConfirm
	// StepComment waits for the free-text delivery comment.
	StepComment
)

// Draft is the mutable in-flight order. Fields fill in as the user walks
// the flow; the draft is discarded whole on restart.
type Draft struct {
	Step     Step
	Product  string
	Quantity string
	Quality  bool
	Price    int64
}

// Order is a finalized immutable order. Only the latest order per user is
// retained; a newer order overwrites it.
type Order struct {
	UserID   int64
	Product  string
	Quantity string
	Quality  bool
	Price    int64
	Comment  string
	PlacedAt time.Time
}

// Conversation is the per-user record. Mutate it only through Store methods
// so the mode invariant holds.
type Conversation struct {
	UserID   int64
	Username string

	Banned     bool
	Unanswered bool

	Mode  Mode
	Draft *Draft

	LastOrder *Order

	// Tracked collects operator-sent message refs for cleanup on /clear.
	Tracked []gateway.Ref
	// LastPhoto is the single ephemeral product photo currently shown.
	LastPhoto *gateway.Ref
}

// Contact is a user reference returned by queries such as the unanswered list.
type Contact struct {
	UserID   int64
	Username string
}

// Label renders the best-known identification for operator-facing output.
func (c Contact) Label() string {
	if c.Username != "" {
		return "@" + c.Username
	}
	return "id " + strconv.FormatInt(c.UserID, 10)
}
