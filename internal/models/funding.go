package models

// FundingDecision classifies whether an order can be funded as-is.
type FundingDecision int

const (
	// FundingSufficient means a single account covers the required amount.
	FundingSufficient FundingDecision = iota
	// FundingNeedsRebalance means same-currency accounts must be consolidated.
	FundingNeedsRebalance
	// FundingNeedsRebalanceWithConversion means consolidation requires a
	// currency conversion from accounts in other currencies.
	FundingNeedsRebalanceWithConversion
	// FundingNeedsTopUp means available funds cannot cover the order and the
	// user must deposit money.
	FundingNeedsTopUp
)

// String returns a human-readable name for the decision.
func (d FundingDecision) String() string {
	switch d {
	case FundingSufficient:
		return "SUFFICIENT"
	case FundingNeedsRebalance:
		return "NEEDS_REBALANCE"
	case FundingNeedsRebalanceWithConversion:
		return "NEEDS_REBALANCE_WITH_CONVERSION"
	case FundingNeedsTopUp:
		return "NEEDS_TOP_UP"
	default:
		return "UNKNOWN"
	}
}

// NeedsRebalance reports whether the decision requires a transfer plan.
func (d FundingDecision) NeedsRebalance() bool {
	return d == FundingNeedsRebalance || d == FundingNeedsRebalanceWithConversion
}
