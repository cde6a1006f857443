package infrastructure

import (
	"database/sql"
	"time"

	"nexus-settlement/internal/service/order/domain"
)

// OrderModel maps the orders table.
type OrderModel struct {
	ID              string         `gorm:"primaryKey;size:36"`
	UserID          sql.NullString `gorm:"size:64;index"`
	UserEmail       string         `gorm:"size:255"`
	Subtotal        int64
	CouponCode      sql.NullString `gorm:"size:64"`
	CouponDiscount  int64
	PointsDiscount  int64
	PointsUsed      int64
	PointsEarned    int64
	ShippingCost    int64
	Total           int64
	Status          string         `gorm:"size:32;index"`
	ShippingAddress domain.Address `gorm:"serializer:json;type:json"`
	ShippingZone    string         `gorm:"size:32"`
	ShippingMethod  string         `gorm:"size:32"`
	PaymentMethod   string         `gorm:"size:64"`
	Metadata        map[string]any `gorm:"serializer:json;type:json"`
	TrackingNumber  string         `gorm:"size:128"`
	TrackingURL     string         `gorm:"size:512"`
	IdempotencyKey  sql.NullString `gorm:"size:64;uniqueIndex"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel maps order_items. Rows are written once and never updated.
type OrderItemModel struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"size:36;index"`
	ProductID string `gorm:"size:64"`
	Quantity  int64
	Price     int64
	Name      string `gorm:"size:255"`
	Image     string `gorm:"size:512"`
	Variant   string `gorm:"size:128"`
	Size      string `gorm:"size:32"`
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

type ProfileModel struct {
	ID            string `gorm:"primaryKey;size:64"`
	Email         string `gorm:"size:255"`
	LoyaltyPoints int64
	LoyaltyTier   string `gorm:"size:16;default:Bronze"`
	IsBlocked     bool
	Version       int64
}

func (ProfileModel) TableName() string {
	return "profiles"
}

// ReturnModel maps returns. The unique index on order_id keeps one return per order.
type ReturnModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	OrderID   string `gorm:"size:36;uniqueIndex"`
	UserID    string `gorm:"size:64;index"`
	Reason    string `gorm:"type:text"`
	Status    string `gorm:"size:32;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ReturnModel) TableName() string {
	return "returns"
}

type CouponModel struct {
	ID              uint   `gorm:"primaryKey"`
	Code            string `gorm:"size:64;uniqueIndex"`
	DiscountPercent int64
	ExpiresAt       time.Time
	Rule            string `gorm:"type:text"`
}

func (CouponModel) TableName() string {
	return "coupons"
}

// SiteSettingModel is one key/value row of site_settings. Value holds JSON.
type SiteSettingModel struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:json"`
	UpdatedAt time.Time
}

func (SiteSettingModel) TableName() string {
	return "site_settings"
}

// AllModels lists every table AutoMigrate manages.
func AllModels() []any {
	return []any{&OrderModel{}, &OrderItemModel{}, &ProfileModel{}, &ReturnModel{}, &CouponModel{}, &SiteSettingModel{}}
}
