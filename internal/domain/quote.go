package domain

import "time"

// Quote is a single decoded exchange-rate quote as delivered by the provider
// feed. Timestamp is the provider's publication time, not the receive time.
// Rate is always positive; the wire decoder rejects anything else before a
// Quote is constructed.
type Quote struct {
	Timestamp time.Time
	Pair      Pair
	Rate      float64
}
