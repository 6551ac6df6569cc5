// Package chatlog records the full per-user conversation history. Entries
// are held in memory for fast reads and appended to a persistent store;
// the cache is warmed from the store at startup.
package chatlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"storebot/core/logger"
)

// Actor identifies who produced a log entry.
type Actor string

const (
	// ActorUser marks entries written by the end user.
	ActorUser Actor = "user"
	// ActorOperator marks entries written by the operator.
	ActorOperator Actor = "operator"
)

// Kind distinguishes text entries from photo references.
type Kind string

const (
	// KindText is a plain text entry.
	KindText Kind = "text"
	// KindPhoto is a stored photo reference.
	KindPhoto Kind = "photo"
)

// Entry is a single appended history line.
type Entry struct {
	At    time.Time
	Actor Actor
	Kind  Kind
	Body  string
}

// Render formats the entry for operator-facing history pages.
func (e Entry) Render() string {
	body := e.Body
	if e.Kind == KindPhoto {
		body = "[photo " + e.Body + "]"
	}
	return fmt.Sprintf("%s | %s: %s", e.At.Format("02.01.2006 15:04"), e.Actor, body)
}

// LogStore persists history entries per user.
type LogStore interface {
	Append(ctx context.Context, userID int64, e Entry) error
	ReadAll(ctx context.Context, userID int64) ([]Entry, error)
	Erase(ctx context.Context, userID int64) error
	Users(ctx context.Context) ([]int64, error)
}

// PhotoStore persists photo blobs and hands back opaque references.
type PhotoStore interface {
	Save(userID int64, r io.Reader) (string, error)
	Open(ref string) (io.ReadCloser, error)
}

// Service is the chat log facade used by the rest of the bot. Storage
// failures never fail the user-visible action; the entry stays in the
// in-memory cache and the error is logged.
type Service struct {
	mu     sync.RWMutex
	cache  map[int64][]Entry
	store  LogStore
	photos PhotoStore
}

// NewService wires the cache over the given backends.
func NewService(store LogStore, photos PhotoStore) *Service {
	return &Service{
		cache:  make(map[int64][]Entry),
		store:  store,
		photos: photos,
	}
}

// Warm loads every persisted history into memory. Called once at startup.
func (s *Service) Warm(ctx context.Context) error {
	users, err := s.store.Users(ctx)
	if err != nil {
		return fmt.Errorf("chatlog: list users: %w", err)
	}
	loaded := 0
	for _, id := range users {
		entries, err := s.store.ReadAll(ctx, id)
		if err != nil {
			logger.Warn(ctx, "service.chatlog", "chatlog.warm",
				slog.String("status", "fail"),
				slog.Int64("user_id", id),
				slog.String("err", err.Error()),
			)
			continue
		}
		s.mu.Lock()
		s.cache[id] = entries
		s.mu.Unlock()
		loaded++
	}
	logger.Info(ctx, "service.chatlog", "chatlog.warm",
		slog.String("status", "ok"),
		slog.Int("count", loaded),
	)
	return nil
}

// Append records a text entry for the user.
func (s *Service) Append(ctx context.Context, userID int64, actor Actor, text string) {
	s.append(ctx, userID, Entry{At: time.Now(), Actor: actor, Kind: KindText, Body: text})
}

// AppendPhoto records a photo reference for the user.
func (s *Service) AppendPhoto(ctx context.Context, userID int64, actor Actor, ref string) {
	s.append(ctx, userID, Entry{At: time.Now(), Actor: actor, Kind: KindPhoto, Body: ref})
}

func (s *Service) append(ctx context.Context, userID int64, e Entry) {
	s.mu.Lock()
	s.cache[userID] = append(s.cache[userID], e)
	s.mu.Unlock()

	if err := s.store.Append(ctx, userID, e); err != nil {
		logger.Warn(ctx, "service.chatlog", "chatlog.append",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

// History returns the cached entries for the user in append order.
func (s *Service) History(userID int64) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.cache[userID]...)
}

// Erase drops the user's history from memory and from the store. A storage
// failure is logged; the in-memory view is cleared regardless.
func (s *Service) Erase(ctx context.Context, userID int64) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()

	if err := s.store.Erase(ctx, userID); err != nil {
		logger.Warn(ctx, "service.chatlog", "chatlog.erase",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

// SavePhoto stores a photo blob and returns its reference.
func (s *Service) SavePhoto(userID int64, r io.Reader) (string, error) {
	return s.photos.Save(userID, r)
}

// OpenPhoto opens a previously stored photo by reference.
func (s *Service) OpenPhoto(ref string) (io.ReadCloser, error) {
	return s.photos.Open(ref)
}
