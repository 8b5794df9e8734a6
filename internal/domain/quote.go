package domain

import (
	"math"
	"time"
)

// Provenance classifies the bookmaker a quote came from.
type Provenance string

const (
	ProvenanceSharp Provenance = "sharp"
	ProvenanceSoft  Provenance = "soft"
)

// OutcomeOdds is one priced outcome from the reference source.
type OutcomeOdds struct {
	Name  string
	Price float64 // American odds
	Point float64 // spread/total line, 0 for h2h
}

// ImpliedProb converts the American price to a raw (vigged) probability.
func (o OutcomeOdds) ImpliedProb() float64 {
	return AmericanToProb(o.Price)
}

// ReferenceQuote holds one event's odds from a single bookmaker.
type ReferenceQuote struct {
	EventID      string
	Sport        string
	HomeTeam     string
	AwayTeam     string
	CommenceTime time.Time
	Bookmaker    string
	Provenance   Provenance
	H2H          []OutcomeOdds
	Spreads      []OutcomeOdds
	Totals       []OutcomeOdds
	FetchedAt    time.Time
}

// Expired reports whether the quote is older than ttl at now.
func (q ReferenceQuote) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(q.FetchedAt) >= ttl
}

// OddsBatch is one reference-source response with its quota header.
type OddsBatch struct {
	Sport     string
	Quotes    []ReferenceQuote
	Remaining int // -1 when the source did not report it
	Used      int
	FetchedAt time.Time
}

// AmericanToProb converts American odds to implied probability.
//
//	+150 -> 100/250 = 0.40
//	-200 -> 200/300 = 0.667
func AmericanToProb(odds float64) float64 {
	switch {
	case odds > 0:
		return 100 / (odds + 100)
	case odds < 0:
		a := math.Abs(odds)
		return a / (a + 100)
	default:
		return 0
	}
}
