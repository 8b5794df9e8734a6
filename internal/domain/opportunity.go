package domain

import (
	"sort"
	"time"
)

// Side is the venue outcome bought or sold by a leg.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the complementary side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Strategy identifies which detector produced an opportunity.
type Strategy int

const (
	StrategyFairValue Strategy = iota
	StrategyStructural
)

func (s Strategy) String() string {
	switch s {
	case StrategyFairValue:
		return "fair_value"
	case StrategyStructural:
		return "structural"
	default:
		return "unknown"
	}
}

// Icon is the short console label.
func (s Strategy) Icon() string {
	switch s {
	case StrategyFairValue:
		return "[FV]"
	case StrategyStructural:
		return "[ARB]"
	default:
		return "[ ]"
	}
}

// Leg is one side of an opportunity at the price observed on detection.
type Leg struct {
	Side    Side
	TokenID string
	Price   float64
	Depth   float64
}

// Opportunity is produced by the detector and consumed once by admission.
// Treat it as immutable: it is passed by value.
type Opportunity struct {
	ID         string
	Market     Market
	Strategy   Strategy
	Legs       []Leg
	FairProb   float64 // de-vigged probability of Legs[0].Side; 0 for structural
	Edge       float64 // $/share: fair - ask, or 1 - (ask_yes + ask_no)
	ROI        float64 // Edge / cost per share
	Liquidity  float64 // min depth across legs, in shares
	DetectedAt time.Time
}

// CostPerShare is the price paid for one share of every leg combined.
func (o Opportunity) CostPerShare() float64 {
	var c float64
	for _, l := range o.Legs {
		c += l.Price
	}
	return c
}

// Paired reports whether the opportunity needs both sides filled.
func (o Opportunity) Paired() bool {
	return len(o.Legs) > 1
}

// RankOpportunities sorts by edge descending, ties broken by liquidity descending.
func RankOpportunities(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].Edge != opps[j].Edge {
			return opps[i].Edge > opps[j].Edge
		}
		return opps[i].Liquidity > opps[j].Liquidity
	})
}
