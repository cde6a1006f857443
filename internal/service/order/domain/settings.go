// internal/service/order/domain/settings.go
package domain

import "github.com/pkg/errors"

// Zone is the shipping destination category.
type Zone string

const (
	ZoneLocal         Zone = "local"
	ZoneNational      Zone = "national"
	ZoneInternational Zone = "international"
)

// Method is the shipping method within a zone.
type Method string

const (
	MethodStandard Method = "standard"
	MethodExpress  Method = "express"
	MethodAir      Method = "air"
	MethodSea      Method = "sea"
)

// ShippingSelection is the (zone, method) pair a customer picks.
type ShippingSelection struct {
	Zone   Zone   `json:"zone"`
	Method Method `json:"method"`
}

func (s ShippingSelection) IsZero() bool {
	return s.Zone == "" && s.Method == ""
}

// ShippingRates is the static rate table plus the free-shipping threshold.
// A threshold of zero or less disables free shipping.
type ShippingRates struct {
	Table         map[Zone]map[Method]int64 `json:"table" yaml:"table"`
	FreeThreshold int64                     `json:"free_threshold" yaml:"free_threshold"`
}

// Fee looks up the table without applying the threshold.
func (r ShippingRates) Fee(sel ShippingSelection) (int64, error) {
	methods, ok := r.Table[sel.Zone]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownShippingMethod, "zone %q", sel.Zone)
	}
	fee, ok := methods[sel.Method]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownShippingMethod, "method %q in zone %q", sel.Method, sel.Zone)
	}
	return fee, nil
}

// Cost resolves the fee for a selection, overridden to 0 at or above the threshold.
func (r ShippingRates) Cost(sel ShippingSelection, subtotal int64) (int64, error) {
	fee, err := r.Fee(sel)
	if err != nil {
		return 0, err
	}
	if r.FreeThreshold > 0 && subtotal >= r.FreeThreshold {
		return 0, nil
	}
	return fee, nil
}

// Methods lists the methods available in a zone.
func (r ShippingRates) Methods(z Zone) []Method {
	out := make([]Method, 0, len(r.Table[z]))
	for m := range r.Table[z] {
		out = append(out, m)
	}
	return out
}

// LoyaltyRates converts between money and points.
// EarningRate is currency units per earned point; RedemptionRate is currency value per point.
type LoyaltyRates struct {
	EarningRate    int64 `json:"earning_rate" yaml:"earning_rate"`
	RedemptionRate int64 `json:"redemption_rate" yaml:"redemption_rate"`
}

// Settings is the pricing configuration, stored as site_settings rows.
type Settings struct {
	Shipping ShippingRates `json:"shipping" yaml:"shipping"`
	Loyalty  LoyaltyRates  `json:"loyalty" yaml:"loyalty"`
}

// SiteShipping is the flat key layout of the `shipping` site setting.
type SiteShipping struct {
	Standard         *int64 `json:"standard"`
	Express          *int64 `json:"express"`
	National         *int64 `json:"national"`
	NationalExpress  *int64 `json:"nationalExpress"`
	InternationalAir *int64 `json:"internationalAir"`
	InternationalSea *int64 `json:"internationalSea"`
	FreeThreshold    *int64 `json:"freeThreshold"`
}

// SiteLoyalty is the flat key layout of the `loyalty` site setting.
type SiteLoyalty struct {
	EarningRate    *int64 `json:"earningRate"`
	RedemptionRate *int64 `json:"redemptionRate"`
}

// Overlay returns a copy of s with every key present in the site settings applied.
func (s Settings) Overlay(ship *SiteShipping, loyalty *SiteLoyalty) Settings {
	out := Settings{
		Shipping: ShippingRates{
			Table:         make(map[Zone]map[Method]int64, len(s.Shipping.Table)),
			FreeThreshold: s.Shipping.FreeThreshold,
		},
		Loyalty: s.Loyalty,
	}
	for z, methods := range s.Shipping.Table {
		out.Shipping.Table[z] = make(map[Method]int64, len(methods))
		for m, fee := range methods {
			out.Shipping.Table[z][m] = fee
		}
	}

	set := func(z Zone, m Method, v *int64) {
		if v == nil {
			return
		}
		if out.Shipping.Table[z] == nil {
			out.Shipping.Table[z] = map[Method]int64{}
		}
		out.Shipping.Table[z][m] = *v
	}
	if ship != nil {
		set(ZoneLocal, MethodStandard, ship.Standard)
		set(ZoneLocal, MethodExpress, ship.Express)
		set(ZoneNational, MethodStandard, ship.National)
		set(ZoneNational, MethodExpress, ship.NationalExpress)
		set(ZoneInternational, MethodAir, ship.InternationalAir)
		set(ZoneInternational, MethodSea, ship.InternationalSea)
		if ship.FreeThreshold != nil {
			out.Shipping.FreeThreshold = *ship.FreeThreshold
		}
	}
	if loyalty != nil {
		if loyalty.EarningRate != nil {
			out.Loyalty.EarningRate = *loyalty.EarningRate
		}
		if loyalty.RedemptionRate != nil {
			out.Loyalty.RedemptionRate = *loyalty.RedemptionRate
		}
	}
	return out
}
