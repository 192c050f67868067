package domain

// LendingPolicy holds the tunable lending rules.
type LendingPolicy struct {
	DefaultLoanDays int
	// MaxLoanDays caps a single checkout period. Zero means no cap.
	MaxLoanDays         int
	AllowOverdueRenewal bool
	// MaxRenewals caps renewals per checkout. Zero means no cap.
	MaxRenewals     int
	DueSoonDays     int
	FinePerDayCents int32
	MaxFineCents    int32
}

func DefaultLendingPolicy() LendingPolicy {
	return LendingPolicy{
		DefaultLoanDays: 14,
		DueSoonDays:     3,
		FinePerDayCents: 25,
		MaxFineCents:    1000,
	}
}
