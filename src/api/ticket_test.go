package api

import (
	"errors"
	"testing"
	"time"
)

func TestCreateReturnsNonce(t *testing.T) {
	store := NewTicketStore()
	nonce, err := store.Create()
	if err != nil {
		t.Fatal(err)
	}
	if len(nonce) != ticketLength {
		t.Errorf("nonce length = %d, want %d", len(nonce), ticketLength)
	}
	for _, r := range nonce {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			t.Errorf("non-alphanumeric rune %q in nonce", r)
		}
	}
}

func TestValidateConsumesTicket(t *testing.T) {
	store := NewTicketStore()
	nonce, err := store.Create()
	if err != nil {
		t.Fatal(err)
	}
	if !store.Validate(nonce) {
		t.Error("fresh ticket should validate")
	}
	if store.Validate(nonce) {
		t.Error("ticket validated twice")
	}
}

func TestValidateUnknownTicket(t *testing.T) {
	store := NewTicketStore()
	if store.Validate("nonsense") {
		t.Error("unknown ticket validated")
	}
}

func TestExpiredTicketRejectedAndRemoved(t *testing.T) {
	store := NewTicketStore()
	nonce, err := store.Create()
	if err != nil {
		t.Fatal(err)
	}
	// Backdate the ticket past its TTL.
	store.mu.Lock()
	store.pending[nonce] = time.Now().Add(-ticketTTL - time.Second)
	store.mu.Unlock()

	if store.Validate(nonce) {
		t.Error("expired ticket validated")
	}
	if store.Len() != 0 {
		t.Error("expired ticket not removed")
	}
}

func TestCreatePrunesExpired(t *testing.T) {
	store := NewTicketStore()
	for i := 0; i < 10; i++ {
		if _, err := store.Create(); err != nil {
			t.Fatal(err)
		}
	}
	store.mu.Lock()
	for nonce := range store.pending {
		store.pending[nonce] = time.Now().Add(-ticketTTL - time.Second)
	}
	store.mu.Unlock()

	if _, err := store.Create(); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Errorf("len = %d after prune, want 1", store.Len())
	}
}

func TestCapEnforced(t *testing.T) {
	store := NewTicketStore()
	for i := 0; i < maxPendingTickets; i++ {
		if _, err := store.Create(); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := store.Create(); !errors.Is(err, ErrTicketsExhausted) {
		t.Errorf("err = %v, want exhausted", err)
	}
	if store.Len() > maxPendingTickets {
		t.Errorf("len = %d exceeds cap", store.Len())
	}
}
