package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// TestPlan_IsFree tests free tier detection
func TestPlan_IsFree(t *testing.T) {
	tests := []struct {
		name     string
		plan     Plan
		expected bool
	}{
		{"free plan id", Plan{ID: FreePlanID, Price: decimal.Zero}, true},
		{"zero price on a paid id", Plan{ID: "promo", Price: decimal.Zero}, true},
		{"paid plan", Plan{ID: "pro", Price: decimal.NewFromInt(990)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.plan.IsFree())
		})
	}
}

// TestPlan_PriceKopecks tests rubles to minor units conversion
func TestPlan_PriceKopecks(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		expected int64
	}{
		{"whole rubles", "990", 99000},
		{"rubles with kopecks", "490.50", 49050},
		{"single kopeck", "0.01", 1},
		{"zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := decimal.NewFromString(tt.price)
			assert.NoError(t, err)
			plan := Plan{Price: price}
			assert.Equal(t, tt.expected, plan.PriceKopecks())
		})
	}
}
