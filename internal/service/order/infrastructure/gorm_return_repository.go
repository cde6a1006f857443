package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"nexus-settlement/internal/service/order/domain"
)

// GormReturnRepository implements domain.ReturnRepository.
type GormReturnRepository struct {
	store *GormStore
}

func (r *GormReturnRepository) Create(ctx context.Context, ret *domain.ReturnRequest) error {
	err := r.store.conn(ctx).Create(ToReturnModel(ret)).Error
	if isDuplicateKey(err) {
		return errors.Wrapf(domain.ErrDuplicateReturn, "order %s", ret.OrderID)
	}
	if err != nil {
		return persistErr(err, "insert return")
	}
	return nil
}

func (r *GormReturnRepository) find(ctx context.Context, column, value string) (*domain.ReturnRequest, error) {
	var model ReturnModel
	err := r.store.conn(ctx).Where(column+" = ?", value).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrReturnNotFound
	}
	if err != nil {
		return nil, persistErr(err, "select return")
	}
	return ToDomainReturn(&model), nil
}

func (r *GormReturnRepository) FindByID(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	return r.find(ctx, "id", id)
}

func (r *GormReturnRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.ReturnRequest, error) {
	return r.find(ctx, "order_id", orderID)
}

func (r *GormReturnRepository) UpdateStatus(ctx context.Context, ret *domain.ReturnRequest) error {
	res := r.store.conn(ctx).Model(&ReturnModel{}).Where("id = ?", ret.ID).Updates(map[string]any{
		"status":     string(ret.Status),
		"updated_at": ret.UpdatedAt,
	})
	if res.Error != nil {
		return persistErr(res.Error, "update return")
	}
	if res.RowsAffected == 0 {
		return domain.ErrReturnNotFound
	}
	return nil
}

func (r *GormReturnRepository) ListByStatus(ctx context.Context, status domain.ReturnStatus) ([]*domain.ReturnRequest, error) {
	var models []ReturnModel
	if err := r.store.conn(ctx).Where("status = ?", string(status)).Order("created_at").Find(&models).Error; err != nil {
		return nil, persistErr(err, "list returns")
	}
	out := make([]*domain.ReturnRequest, 0, len(models))
	for i := range models {
		out = append(out, ToDomainReturn(&models[i]))
	}
	return out, nil
}
