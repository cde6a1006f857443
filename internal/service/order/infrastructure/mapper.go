package infrastructure

import (
	"database/sql"

	"nexus-settlement/internal/service/order/domain"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ToOrderModel(o *domain.Order) *OrderModel {
	return &OrderModel{
		ID:              o.ID,
		UserID:          nullString(o.UserID),
		UserEmail:       o.UserEmail,
		Subtotal:        o.Subtotal,
		CouponCode:      nullString(o.CouponCode),
		CouponDiscount:  o.CouponDiscount,
		PointsDiscount:  o.PointsDiscount,
		PointsUsed:      o.PointsUsed,
		PointsEarned:    o.PointsEarned,
		ShippingCost:    o.ShippingCost,
		Total:           o.Total,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		ShippingZone:    string(o.ShippingZone),
		ShippingMethod:  string(o.ShippingMethod),
		PaymentMethod:   o.PaymentMethod,
		Metadata:        o.Metadata,
		TrackingNumber:  o.TrackingNumber,
		TrackingURL:     o.TrackingURL,
		IdempotencyKey:  nullString(o.IdempotencyKey),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func ToDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:              m.ID,
		UserID:          m.UserID.String,
		UserEmail:       m.UserEmail,
		ShippingAddress: m.ShippingAddress,
		ShippingZone:    domain.Zone(m.ShippingZone),
		ShippingMethod:  domain.Method(m.ShippingMethod),
		PaymentMethod:   m.PaymentMethod,
		Subtotal:        m.Subtotal,
		CouponCode:      m.CouponCode.String,
		CouponDiscount:  m.CouponDiscount,
		PointsDiscount:  m.PointsDiscount,
		PointsUsed:      m.PointsUsed,
		PointsEarned:    m.PointsEarned,
		ShippingCost:    m.ShippingCost,
		Total:           m.Total,
		Status:          domain.Status(m.Status),
		TrackingNumber:  m.TrackingNumber,
		TrackingURL:     m.TrackingURL,
		Metadata:        m.Metadata,
		IdempotencyKey:  m.IdempotencyKey.String,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			OrderID:   it.OrderID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Name:      it.Name,
			Image:     it.Image,
			Variant:   it.Variant,
			Size:      it.Size,
		})
	}
	return o
}

func ToOrderItemModels(orderID string, items []domain.OrderItem) []OrderItemModel {
	out := make([]OrderItemModel, 0, len(items))
	for _, it := range items {
		out = append(out, OrderItemModel{
			OrderID:   orderID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Name:      it.Name,
			Image:     it.Image,
			Variant:   it.Variant,
			Size:      it.Size,
		})
	}
	return out
}

func ToDomainProfile(m *ProfileModel) *domain.Profile {
	return &domain.Profile{
		ID:      m.ID,
		Email:   m.Email,
		Points:  m.LoyaltyPoints,
		Tier:    domain.Tier(m.LoyaltyTier),
		Blocked: m.IsBlocked,
		Version: m.Version,
	}
}

func ToReturnModel(r *domain.ReturnRequest) *ReturnModel {
	return &ReturnModel{
		ID:        r.ID,
		OrderID:   r.OrderID,
		UserID:    r.UserID,
		Reason:    r.Reason,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func ToDomainReturn(m *ReturnModel) *domain.ReturnRequest {
	return &domain.ReturnRequest{
		ID:        m.ID,
		OrderID:   m.OrderID,
		UserID:    m.UserID,
		Reason:    m.Reason,
		Status:    domain.ReturnStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func ToDomainCoupon(m *CouponModel) *domain.Coupon {
	return &domain.Coupon{
		Code:            m.Code,
		DiscountPercent: m.DiscountPercent,
		ExpiresAt:       m.ExpiresAt,
		Rule:            m.Rule,
	}
}
