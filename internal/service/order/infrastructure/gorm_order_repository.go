package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"nexus-settlement/internal/service/order/domain"
)

// GormOrderRepository implements domain.OrderRepository.
type GormOrderRepository struct {
	store *GormStore
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	err := r.store.conn(ctx).Omit("Items").Create(ToOrderModel(order)).Error
	if isDuplicateKey(err) && order.IdempotencyKey != "" {
		// Order ids are uuids, so the collision is on idempotency_key.
		return errors.Wrapf(domain.ErrDuplicateSubmission, "key %s", order.IdempotencyKey)
	}
	if err != nil {
		return persistErr(err, "insert order")
	}
	return nil
}

func (r *GormOrderRepository) AddItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	models := ToOrderItemModels(orderID, items)
	if err := r.store.conn(ctx).Create(&models).Error; err != nil {
		return persistErr(err, "insert order items")
	}
	return nil
}

func (r *GormOrderRepository) findOrder(ctx context.Context, query string, arg any) (*domain.Order, error) {
	var model OrderModel
	err := r.store.conn(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where(query, arg).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, persistErr(err, "select order")
	}
	return ToDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOrder(ctx, "id = ?", id)
}

func (r *GormOrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return r.findOrder(ctx, "idempotency_key = ?", key)
}

func (r *GormOrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	var models []OrderModel
	err := r.store.conn(ctx).Preload("Items").Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error
	if err != nil {
		return nil, persistErr(err, "list orders")
	}
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, ToDomainOrder(&models[i]))
	}
	return out, nil
}

// Update writes the staff-editable columns only.
func (r *GormOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	res := r.store.conn(ctx).Model(&OrderModel{}).Where("id = ?", order.ID).Updates(map[string]any{
		"status":          string(order.Status),
		"tracking_number": order.TrackingNumber,
		"tracking_url":    order.TrackingURL,
		"updated_at":      order.UpdatedAt,
	})
	if res.Error != nil {
		return persistErr(res.Error, "update order")
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// Delete removes the order with its items and return in one transaction.
func (r *GormOrderRepository) Delete(ctx context.Context, id string) error {
	return r.store.WithinTx(ctx, func(ctx context.Context) error {
		db := r.store.conn(ctx)
		if err := db.Where("order_id = ?", id).Delete(&ReturnModel{}).Error; err != nil {
			return persistErr(err, "delete return")
		}
		if err := db.Where("order_id = ?", id).Delete(&OrderItemModel{}).Error; err != nil {
			return persistErr(err, "delete order items")
		}
		res := db.Where("id = ?", id).Delete(&OrderModel{})
		if res.Error != nil {
			return persistErr(res.Error, "delete order")
		}
		if res.RowsAffected == 0 {
			return domain.ErrOrderNotFound
		}
		return nil
	})
}
