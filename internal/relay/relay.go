// Package relay multiplexes many user conversations into the single
// operator inbox and routes operator replies back by handle or ID.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"storebot/core/logger"
	"storebot/internal/chatlog"
	"storebot/internal/gateway"
	"storebot/internal/session"
)

const (
	msgContactPrompt = "Write one message; it will be forwarded to the operator."
	msgForwarded     = "Forwarded to the operator. You will get a reply here."
)

// Service forwards user messages to the operator and delivers operator
// replies back. Forwarding is single-shot: each "contact operator" intent
// arms exactly one forward.
type Service struct {
	store      *session.Store
	gw         gateway.Gateway
	logs       *chatlog.Service
	operatorID int64
}

// NewService builds the relay over the shared stores and transport.
func NewService(store *session.Store, gw gateway.Gateway, logs *chatlog.Service, operatorID int64) *Service {
	return &Service{
		store:      store,
		gw:         gw,
		logs:       logs,
		operatorID: operatorID,
	}
}

// RequestContact arms the next-message forward for the user and prompts
// them. Any in-progress order draft is discarded.
func (s *Service) RequestContact(ctx context.Context, userID int64) error {
	s.store.AwaitForward(userID)
	_, err := s.gw.SendText(userID, msgContactPrompt, nil)
	return err
}

// ForwardText relays one armed text message to the operator, logs it and
// marks the user unanswered. Events for users who are not armed are dropped.
func (s *Service) ForwardText(ctx context.Context, userID int64, text string) error {
	if s.store.ModeOf(userID) != session.ModeAwaitingForward {
		return nil
	}
	s.store.EndAwait(userID)
	s.store.SetUnanswered(userID, true)
	s.logs.Append(ctx, userID, chatlog.ActorUser, text)

	contact := s.store.ContactOf(userID)
	header := fmt.Sprintf("Message from %s:\n%s", contact.Label(), text)
	if _, err := s.gw.SendText(s.operatorID, header, nil); err != nil {
		logger.Warn(ctx, "service.relay", "relay.forward",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
	_, err := s.gw.SendText(userID, msgForwarded, nil)
	return err
}

// ForwardPhoto relays one armed photo to the operator. storedRef is the
// blob-store reference the caller already saved for the chat log; empty if
// saving failed.
func (s *Service) ForwardPhoto(ctx context.Context, userID int64, photo gateway.Photo, storedRef string) error {
	if s.store.ModeOf(userID) != session.ModeAwaitingForward {
		return nil
	}
	s.store.EndAwait(userID)
	s.store.SetUnanswered(userID, true)
	if storedRef != "" {
		s.logs.AppendPhoto(ctx, userID, chatlog.ActorUser, storedRef)
	}

	contact := s.store.ContactOf(userID)
	caption := fmt.Sprintf("Photo from %s", contact.Label())
	if photo.Caption != "" {
		caption += "\n" + photo.Caption
	}
	photo.Caption = caption
	if _, err := s.gw.SendPhoto(s.operatorID, photo); err != nil {
		logger.Warn(ctx, "service.relay", "relay.forward",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
	_, err := s.gw.SendText(userID, msgForwarded, nil)
	return err
}

// DeliverText sends an operator reply to the resolved target, tracks the
// message for later cleanup, logs it and clears the unanswered marker.
// Returns the resolved contact so the caller can confirm delivery.
func (s *Service) DeliverText(ctx context.Context, target, body string) (session.Contact, error) {
	userID, err := s.store.Resolve(target)
	if err != nil {
		return session.Contact{}, err
	}
	ref, err := s.gw.SendText(userID, body, nil)
	if err != nil {
		return s.store.ContactOf(userID), err
	}
	s.afterDelivery(ctx, userID, ref)
	s.logs.Append(ctx, userID, chatlog.ActorOperator, body)
	return s.store.ContactOf(userID), nil
}

// DeliverPhoto sends an operator photo reply to the resolved target.
// storedRef is the blob-store reference logged for history; empty skips the
// log entry.
func (s *Service) DeliverPhoto(ctx context.Context, target string, photo gateway.Photo, storedRef string) (session.Contact, error) {
	userID, err := s.store.Resolve(target)
	if err != nil {
		return session.Contact{}, err
	}
	ref, err := s.gw.SendPhoto(userID, photo)
	if err != nil {
		return s.store.ContactOf(userID), err
	}
	s.afterDelivery(ctx, userID, ref)
	if storedRef != "" {
		s.logs.AppendPhoto(ctx, userID, chatlog.ActorOperator, storedRef)
	}
	return s.store.ContactOf(userID), nil
}

// Unanswered lists users who wrote in and have not been replied to yet.
func (s *Service) Unanswered() []session.Contact {
	return s.store.Unanswered()
}

// Engaged reports whether the user's next message is armed for forwarding.
func (s *Service) Engaged(userID int64) bool {
	return s.store.ModeOf(userID) == session.ModeAwaitingForward
}

func (s *Service) afterDelivery(ctx context.Context, userID int64, ref gateway.Ref) {
	s.store.Track(userID, ref)
	s.store.SetUnanswered(userID, false)
	logger.Info(ctx, "service.relay", "relay.deliver",
		slog.Int64("target", userID),
	)
}
