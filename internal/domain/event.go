package domain

import "time"

// EventType tags notifications.
type EventType string

const (
	EventOpportunity  EventType = "opportunity_found"
	EventFilled       EventType = "trade_filled"
	EventRejected     EventType = "trade_rejected"
	EventLegRisk      EventType = "leg_risk"
	EventSettled      EventType = "settled"
	EventError        EventType = "error"
	EventDailySummary EventType = "daily_summary"
	EventKillSwitch   EventType = "kill_switch"
)

// Event is a structured notification. Only the fields relevant to Type are set.
type Event struct {
	Type        EventType
	At          time.Time
	Sport       string
	MarketID    string
	Question    string
	Message     string
	Reason      ReasonCode
	Opportunity *Opportunity
	Attempts    []OrderAttempt
	Settlement  *SettlementResult
	Summary     *DailySummary
}
