// internal/service/order/domain/event.go
package domain

import "time"

// OrderPlaced is published after the placement transaction commits.
type OrderPlaced struct {
	OrderID      string    `json:"orderId"`
	UserID       string    `json:"userId,omitempty"`
	UserEmail    string    `json:"userEmail"`
	Total        int64     `json:"total"`
	PointsUsed   int64     `json:"pointsUsed"`
	PointsEarned int64     `json:"pointsEarned"`
	PlacedAt     time.Time `json:"placedAt"`
}

// OrderStatusChanged is published when an order enters a status the customer
// must be told about.
type OrderStatusChanged struct {
	OrderID        string    `json:"orderId"`
	UserEmail      string    `json:"userEmail"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	TrackingURL    string    `json:"trackingUrl,omitempty"`
	At             time.Time `json:"at"`
}

// ReturnResolved is published when staff resolves a return.
type ReturnResolved struct {
	ReturnID string       `json:"returnId"`
	OrderID  string       `json:"orderId"`
	UserID   string       `json:"userId"`
	Status   ReturnStatus `json:"status"`
	At       time.Time    `json:"at"`
}

// ReturnCascadeRequested asks a consumer to set an order to Remboursé after the
// in-process attempts failed.
type ReturnCascadeRequested struct {
	ReturnID    string    `json:"returnId"`
	OrderID     string    `json:"orderId"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requestedAt"`
}
