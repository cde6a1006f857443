// internal/service/order/domain/loyalty.go
package domain

import "github.com/pkg/errors"

// Tier is the loyalty tier label. It is stored on the profile, never recomputed here.
type Tier string

const (
	TierBronze  Tier = "Bronze"
	TierArgent  Tier = "Argent"
	TierOr      Tier = "Or"
	TierPlatine Tier = "Platine"
)

var tierRank = map[Tier]int{TierBronze: 1, TierArgent: 2, TierOr: 3, TierPlatine: 4}

// Rank orders tiers: Bronze < Argent < Or < Platine. Unknown labels rank 0.
func (t Tier) Rank() int {
	return tierRank[t]
}

func (t Tier) Less(other Tier) bool {
	return t.Rank() < other.Rank()
}

// Profile is the customer account carrying the loyalty balance.
type Profile struct {
	ID      string
	Email   string
	Points  int64
	Tier    Tier
	Blocked bool
	Version int64
}

// Adjust computes balance − used + earned, refusing to go negative.
func (p *Profile) Adjust(used, earned int64) (int64, error) {
	if used < 0 || earned < 0 {
		return 0, errors.Errorf("loyalty adjustment must not be negative: used=%d earned=%d", used, earned)
	}
	next := p.Points - used + earned
	if next < 0 {
		return 0, errors.Wrapf(ErrInsufficientPoints, "balance %d, used %d", p.Points, used)
	}
	return next, nil
}

// CanRedeem caps a redemption request by the balance.
func (p *Profile) CanRedeem(points int64) error {
	if points > p.Points {
		return errors.Wrapf(ErrInsufficientPoints, "requested %d, balance %d", points, p.Points)
	}
	return nil
}
