package port

import "context"

// ReservationResult is the outcome of reserving a checkout submission key.
type ReservationResult int

const (
	ReservationAcquired ReservationResult = iota + 1
	ReservationInFlight
	ReservationCompleted
)

// IdempotencyStore guards order placement against duplicate submissions.
type IdempotencyStore interface {
	// Reserve claims the key. When the key already completed, the returned
	// order id is the order it produced.
	Reserve(ctx context.Context, key string) (ReservationResult, string, error)

	// Complete records the order produced under the key.
	Complete(ctx context.Context, key, orderID string) error

	// Release is the compensation of Reserve after a failed placement.
	Release(ctx context.Context, key string) error
}
