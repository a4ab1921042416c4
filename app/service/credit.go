package service

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// DaysRemaining counts whole days, rounded up, until nextBilling. It is 0
// when there is no billing date or it has passed.
func DaysRemaining(nextBilling *time.Time, now time.Time) int64 {
	if nextBilling == nil || !nextBilling.After(now) {
		return 0
	}
	return int64(math.Ceil(float64(nextBilling.Sub(now)) / float64(day)))
}

// UpgradeCreditCents prorates what was paid for the current period over the
// days still left in it. Lifetime plans (period 0) give no credit.
func UpgradeCreditCents(pricePaidCents int64, periodDays int32, nextBilling *time.Time, now time.Time) int64 {
	if periodDays <= 0 || pricePaidCents <= 0 {
		return 0
	}
	remaining := DaysRemaining(nextBilling, now)
	if remaining <= 0 {
		return 0
	}
	return int64(math.Round(float64(pricePaidCents) / float64(periodDays) * float64(remaining)))
}

func applyCredit(baseCents, creditCents int64) int64 {
	if creditCents >= baseCents {
		return 0
	}
	return baseCents - creditCents
}
