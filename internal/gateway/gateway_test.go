package gateway

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestClassifyDelivery(t *testing.T) {
	err := classifyDelivery(5, tele.ErrBlockedByUser)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("blocked error not classified: %v", err)
	}

	plain := errors.New("telegram: internal")
	err = classifyDelivery(5, plain)
	if errors.Is(err, ErrBlocked) {
		t.Fatalf("generic error classified as blocked: %v", err)
	}
	if !errors.Is(err, plain) {
		t.Fatalf("original error lost: %v", err)
	}
}

func TestRefZero(t *testing.T) {
	if !(Ref{}).Zero() {
		t.Fatal("empty ref not zero")
	}
	if (Ref{ChatID: 1, MessageID: 2}).Zero() {
		t.Fatal("populated ref reported zero")
	}
}
