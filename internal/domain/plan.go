package domain

import "github.com/shopspring/decimal"

// FreePlanID is the catalog identifier of the free tier. Suspended
// subscriptions are moved onto this plan.
const FreePlanID = "free"

// Plan is an immutable catalog entry describing a subscription tier.
// Price is in rubles; the gateway works in kopecks (minor units).
type Plan struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	CheckCredits int             `json:"check_credits"`
	DurationDays int             `json:"duration_days"`
}

// IsFree returns true for the free tier
func (p *Plan) IsFree() bool {
	return p.ID == FreePlanID || p.Price.IsZero()
}

// PriceKopecks returns the plan price in minor units as the gateway expects.
// Decimal arithmetic avoids float rounding on the conversion.
func (p *Plan) PriceKopecks() int64 {
	return p.Price.Mul(decimal.NewFromInt(100)).IntPart()
}
