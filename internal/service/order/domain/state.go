// internal/service/order/domain/state.go
package domain

import "github.com/pkg/errors"

// Status is the lifecycle status of an order. Values are stored as-is.
type Status string

const (
	StatusInProgress Status = "En cours"
	StatusShipped    Status = "Expédié"
	StatusDelivered  Status = "Livré"
	StatusCancelled  Status = "Annulé"
	StatusRefunded   Status = "Remboursé"

	// StatusPending is a legacy spelling of the initial status found on older rows.
	StatusPending Status = "En attente"
)

var progress = map[Status]int{
	StatusPending:    1,
	StatusInProgress: 1,
	StatusShipped:    2,
	StatusDelivered:  3,
}

// Valid reports whether staff may set the status.
func (s Status) Valid() bool {
	switch s {
	case StatusInProgress, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether the status absorbs the order (cancelled or refunded).
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", errors.Wrapf(ErrInvalidStatus, "%q", raw)
	}
	return s, nil
}

// TrackingStep maps a status to the customer-facing 3-step progress indicator.
func TrackingStep(s Status) int {
	return progress[s]
}

// NotifiesCustomer reports whether entering the status triggers a customer notification.
func NotifiesCustomer(s Status) bool {
	return s == StatusShipped || s == StatusDelivered
}

// TransitionKind classifies a staff status change.
type TransitionKind string

const (
	TransitionForward   TransitionKind = "forward"
	TransitionBackward  TransitionKind = "backward"
	TransitionUnchanged TransitionKind = "unchanged"
	TransitionLateral   TransitionKind = "lateral"
)

type Transition struct {
	From Status
	To   Status
	Kind TransitionKind
}

// Changed reports whether the status actually moved.
func (t Transition) Changed() bool {
	return t.Kind != TransitionUnchanged
}

// Notify reports whether the transition must trigger a customer notification.
func (t Transition) Notify() bool {
	return t.Changed() && NotifiesCustomer(t.To)
}

// Classify orders statuses along En cours → Expédié → Livré → (Annulé | Remboursé).
// Leaving an absorbing status is backward; moving between the two absorbing ones is lateral.
func Classify(from, to Status) Transition {
	t := Transition{From: from, To: to}
	switch {
	case from == to:
		t.Kind = TransitionUnchanged
	case from.Terminal() && to.Terminal():
		t.Kind = TransitionLateral
	case from.Terminal():
		t.Kind = TransitionBackward
	case to.Terminal():
		t.Kind = TransitionForward
	case progress[to] > progress[from]:
		t.Kind = TransitionForward
	case progress[to] < progress[from]:
		t.Kind = TransitionBackward
	default:
		t.Kind = TransitionLateral
	}
	return t
}
