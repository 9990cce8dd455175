package domain

import "time"

// Step is one conversion in an arbitrage cycle. Weight is the edge weight in
// the negative-log graph; Rate is the tradeable exchange rate recovered from
// it (rate = 10^(-weight)).
type Step struct {
	From   Currency `json:"from"`
	To     Currency `json:"to"`
	Weight float64  `json:"weight"`
	Rate   float64  `json:"rate"`
}

// Opportunity is a detected arbitrage cycle through the base currency,
// together with the notional result of trading it once.
type Opportunity struct {
	ID string `json:"id"`

	// Base is the currency the cycle starts and ends in.
	Base Currency `json:"base"`

	// Cycle is the ordered list of intermediate currencies, base implicit at
	// both ends: base -> Cycle[0] -> ... -> Cycle[n-1] -> base.
	Cycle []Currency `json:"cycle"`

	// Steps spells out every conversion including the closing leg back to Base.
	Steps []Step `json:"steps"`

	// StartAmount and EndAmount are the notional traded through the cycle.
	StartAmount float64 `json:"start_amount"`
	EndAmount   float64 `json:"end_amount"`

	DetectedAt time.Time `json:"detected_at"`
}

// Profit returns the absolute notional gain of trading the cycle once.
func (o Opportunity) Profit() float64 {
	return o.EndAmount - o.StartAmount
}

// ProfitRatio returns EndAmount/StartAmount; > 1 for any reported opportunity.
func (o Opportunity) ProfitRatio() float64 {
	if o.StartAmount == 0 {
		return 0
	}
	return o.EndAmount / o.StartAmount
}
