// Package session carries the customer's identity explicitly instead of
// letting components read device storage on their own.
package session

import (
	"context"
	"errors"
	"fmt"
)

// Keys written by the login flow.
const (
	TokenKey      = "customerToken"
	CustomerIDKey = "customer_id"
)

var (
	ErrNoSession = errors.New("no customer session")
	ErrKeyAbsent = errors.New("session key not set")
)

// Session is read-only for this module; nothing here writes credentials.
type Session struct {
	Token      string
	CustomerID string
}

// Authorized reports whether the session can be used for mutating calls.
func (s Session) Authorized() bool {
	return s.Token != "" && s.CustomerID != ""
}

// Store is the persisted key-value storage the login flow writes to.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error
}

// Load reads the session from store. A missing customer id is ErrNoSession;
// a missing token yields a session that is not Authorized.
func Load(ctx context.Context, store Store) (Session, error) {
	customerID, err := store.Get(ctx, CustomerIDKey)
	if errors.Is(err, ErrKeyAbsent) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("read customer id: %w", err)
	}

	token, err := store.Get(ctx, TokenKey)
	if err != nil && !errors.Is(err, ErrKeyAbsent) {
		return Session{}, fmt.Errorf("read token: %w", err)
	}

	return Session{Token: token, CustomerID: customerID}, nil
}
