package session

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"storebot/internal/gateway"
)

// ErrUnknownRecipient indicates a handle or ID that does not map to a known
// conversation.
var ErrUnknownRecipient = errors.New("session: unknown recipient")

// Store is the in-memory conversation repository. A single RWMutex guards
// all records, which also serializes mutations per user: the dispatcher
// never interleaves two writes to the same conversation.
type Store struct {
	mu      sync.RWMutex
	convs   map[int64]*Conversation
	handles map[string]int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		convs:   make(map[int64]*Conversation),
		handles: make(map[string]int64),
	}
}

func (s *Store) conv(userID int64) *Conversation {
	c, ok := s.convs[userID]
	if !ok {
		c = &Conversation{UserID: userID}
		s.convs[userID] = c
	}
	return c
}

// Touch registers that a user was seen, opportunistically indexing their
// handle. The index is not guaranteed complete: a handle is only known after
// the user has sent at least one message since process start.
func (s *Store) Touch(userID int64, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(userID)
	username = strings.TrimPrefix(username, "@")
	if username != "" && username != c.Username {
		if c.Username != "" {
			delete(s.handles, strings.ToLower(c.Username))
		}
		c.Username = username
	}
	if c.Username != "" {
		s.handles[strings.ToLower(c.Username)] = userID
	}
}

// Update runs fn against the user's conversation under the write lock,
// creating the record if needed.
func (s *Store) Update(userID int64, fn func(*Conversation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.conv(userID))
}

// Get returns a copy of the conversation. The draft and order are copied so
// callers cannot mutate shared state.
func (s *Store) Get(userID int64) Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[userID]
	if !ok {
		return Conversation{UserID: userID}
	}
	out := *c
	if c.Draft != nil {
		d := *c.Draft
		out.Draft = &d
	}
	if c.LastOrder != nil {
		o := *c.LastOrder
		out.LastOrder = &o
	}
	if c.LastPhoto != nil {
		r := *c.LastPhoto
		out.LastPhoto = &r
	}
	out.Tracked = append([]gateway.Ref(nil), c.Tracked...)
	return out
}

// Track remembers an operator-sent message so /clear can delete it later.
func (s *Store) Track(userID int64, ref gateway.Ref) {
	if ref.Zero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(userID)
	c.Tracked = append(c.Tracked, ref)
}

// TakeTracked returns and clears all tracked message refs for a user.
func (s *Store) TakeTracked(userID int64) []gateway.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[userID]
	if !ok {
		return nil
	}
	refs := c.Tracked
	c.Tracked = nil
	return refs
}

// SwapPhoto records the new ephemeral photo message and returns the previous
// one so the caller can delete it.
func (s *Store) SwapPhoto(userID int64, ref gateway.Ref) (gateway.Ref, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(userID)
	var prev gateway.Ref
	had := c.LastPhoto != nil
	if had {
		prev = *c.LastPhoto
	}
	if ref.Zero() {
		c.LastPhoto = nil
	} else {
		r := ref
		c.LastPhoto = &r
	}
	return prev, had
}

// ModeOf reports the user's current conversation mode.
func (s *Store) ModeOf(userID int64) Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.convs[userID]; ok {
		return c.Mode
	}
	return ModeIdle
}

// IsBanned reports whether the user is banned.
func (s *Store) IsBanned(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[userID]
	return ok && c.Banned
}

// SetBanned flips the ban flag. Banning also discards any active flow so a
// later unban starts from a clean idle state.
func (s *Store) SetBanned(userID int64, banned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(userID)
	c.Banned = banned
	if banned {
		c.Mode = ModeIdle
		c.Draft = nil
	}
}

// BeginOrder starts a fresh draft, discarding any prior one and leaving any
// awaiting-forward mode. Returns a copy of the new draft.
func (s *Store) BeginOrder(userID int64) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(userID)
	c.Mode = ModeOrdering
	c.Draft = &Draft{Step: StepProduct}
	return *c.Draft
}

// DraftOf returns a copy of the in-flight draft, if any.
func (s *Store) DraftOf(userID int64) (Draft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[userID]
	if !ok || c.Mode != ModeOrdering || c.Draft == nil {
		return Draft{}, false
	}
	return *c.Draft, true
}

// UpdateDraft mutates the in-flight draft under the write lock. Returns
// false when the user is not ordering, in which case fn is not called.
func (s *Store) UpdateDraft(userID int64, fn func(*Draft)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[userID]
	if !ok || c.Mode != ModeOrdering || c.Draft == nil {
		return false
	}
	fn(c.Draft)
	return true
}

// Finalize stores the completed order as the user's latest and returns the
// conversation to idle. The draft is discarded.
func (s *Store) Finalize(userID int64, order Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(userID)
	o := order
	c.LastOrder = &o
	c.Mode = ModeIdle
	c.Draft = nil
}

// AbortOrder discards the draft and returns to idle.
func (s *Store) AbortOrder(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(userID)
	c.Mode = ModeIdle
	c.Draft = nil
}

// AwaitForward switches the user into awaiting-forward mode, discarding any
// order draft.
func (s *Store) AwaitForward(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(userID)
	c.Mode = ModeAwaitingForward
	c.Draft = nil
}

// EndAwait clears awaiting-forward mode after the single-shot forward.
func (s *Store) EndAwait(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(userID)
	if c.Mode == ModeAwaitingForward {
		c.Mode = ModeIdle
	}
}

// LastOrder returns a copy of the latest finalized order.
func (s *Store) LastOrder(userID int64) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[userID]
	if !ok || c.LastOrder == nil {
		return Order{}, false
	}
	return *c.LastOrder, true
}

// SetUnanswered marks or clears the user in the unanswered set.
func (s *Store) SetUnanswered(userID int64, pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv(userID).Unanswered = pending
}

// Unanswered lists users whose last inbound message has not been answered,
// ordered by user ID for stable output.
func (s *Store) Unanswered() []Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Contact
	for id, c := range s.convs {
		if c.Unanswered {
			out = append(out, Contact{UserID: id, Username: c.Username})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Resolve maps an operator-supplied target (handle with or without "@", or a
// numeric ID) to a user ID. Numeric targets resolve directly; handles must
// have been seen since startup.
func (s *Store) Resolve(target string) (int64, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return 0, ErrUnknownRecipient
	}
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		return id, nil
	}
	handle := strings.ToLower(strings.TrimPrefix(target, "@"))
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.handles[handle]; ok {
		return id, nil
	}
	return 0, ErrUnknownRecipient
}

// ContactOf returns the best-known contact info for a user.
func (s *Store) ContactOf(userID int64) Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.convs[userID]; ok {
		return Contact{UserID: userID, Username: c.Username}
	}
	return Contact{UserID: userID}
}
