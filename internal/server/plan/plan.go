// Package plan holds the static subscription-tier limit table.
//
// Limits are consulted at transfer-creation time only; a later plan change
// does not retroactively affect existing transfers.
package plan

import "strings"

// Tier is a subscription level.
type Tier string

const (
	Free     Tier = "FREE"
	Pro      Tier = "PRO"
	Business Tier = "BUSINESS"
)

// Limits describes what a tier permits.
type Limits struct {
	// MaxTransferBytes is the cap on the summed size of a single transfer's files.
	MaxTransferBytes int64
	// ExpiryDays is the default expiry window applied when no override is given.
	ExpiryDays int
	// MonthlyTransfers caps transfer creations per calendar month. Zero means unlimited.
	MonthlyTransfers int
	// AllowPassword permits password-protected transfers.
	AllowPassword bool
}

var limits = map[Tier]Limits{
	Free: {
		MaxTransferBytes: 5 << 30, // 5 GiB
		ExpiryDays:       7,
		MonthlyTransfers: 10,
		AllowPassword:    false,
	},
	Pro: {
		MaxTransferBytes: 100 << 30,
		ExpiryDays:       30,
		MonthlyTransfers: 0,
		AllowPassword:    true,
	},
	Business: {
		MaxTransferBytes: 1 << 40, // 1 TiB
		ExpiryDays:       90,
		MonthlyTransfers: 0,
		AllowPassword:    true,
	},
}

// ForTier returns the limits for a tier. Unknown or empty tiers
// fall back to FREE limits.
func ForTier(t Tier) Limits {
	if l, ok := limits[Tier(strings.ToUpper(string(t)))]; ok {
		return l
	}
	return limits[Free]
}

// Valid reports whether t names a known tier.
func Valid(t Tier) bool {
	_, ok := limits[Tier(strings.ToUpper(string(t)))]
	return ok
}
