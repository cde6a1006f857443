// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository persists the order aggregate. Implemented in infrastructure.
type OrderRepository interface {
	// Create inserts the order row without its items.
	Create(ctx context.Context, order *Order) error
	// AddItems inserts the items of an existing order.
	AddItems(ctx context.Context, orderID string, items []OrderItem) error
	// FindByID loads the order with its items.
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	// Update writes status and tracking fields.
	Update(ctx context.Context, order *Order) error
	// Delete removes the order, its items and its return.
	Delete(ctx context.Context, id string) error
}

type ReturnRepository interface {
	// Create fails with ErrDuplicateReturn when the order already has a return.
	Create(ctx context.Context, r *ReturnRequest) error
	FindByID(ctx context.Context, id string) (*ReturnRequest, error)
	FindByOrderID(ctx context.Context, orderID string) (*ReturnRequest, error)
	UpdateStatus(ctx context.Context, r *ReturnRequest) error
	ListByStatus(ctx context.Context, status ReturnStatus) ([]*ReturnRequest, error)
}

type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (*Profile, error)
	// UpdatePoints writes the balance only when the stored version still equals
	// expectedVersion, failing with ErrConcurrentUpdate otherwise.
	UpdatePoints(ctx context.Context, id string, points, expectedVersion int64) error
}

type CouponRepository interface {
	// FindByCode fails with ErrInvalidCoupon when no coupon has the code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

type SettingsRepository interface {
	Load(ctx context.Context) (Settings, error)
}

// Transactor runs fn in one transaction. Repositories called with the context
// passed to fn take part in it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
