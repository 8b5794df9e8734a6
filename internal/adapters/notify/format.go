package notify

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// formatEvent renders an event as one human line, shared by every sink.
func formatEvent(e domain.Event) string {
	q := domain.TruncateQuestion(e.Question, e.MarketID, 45)
	switch e.Type {
	case domain.EventOpportunity:
		if e.Opportunity == nil {
			return fmt.Sprintf("OPP %s", q)
		}
		o := e.Opportunity
		return fmt.Sprintf("OPP %s %s edge %.3f roi %.1f%% liq %.0f [%s]",
			o.Strategy.Icon(), q, o.Edge, o.ROI*100, o.Liquidity, legsLabel(o.Legs))
	case domain.EventFilled:
		return fmt.Sprintf("FILLED %s %s", q, attemptsLabel(e.Attempts))
	case domain.EventRejected:
		return fmt.Sprintf("REJECTED %s (%s) %s", q, e.Reason, e.Message)
	case domain.EventLegRisk:
		return fmt.Sprintf("LEG RISK %s %s: %s", q, attemptsLabel(e.Attempts), e.Message)
	case domain.EventSettled:
		if e.Settlement == nil {
			return fmt.Sprintf("SETTLED %s", q)
		}
		s := e.Settlement
		return fmt.Sprintf("SETTLED %s winner=%s payout $%.2f pnl %s bankroll $%.2f",
			q, s.Winner, s.Payout, signedUSD(s.PnL), s.Bankroll)
	case domain.EventDailySummary:
		if e.Summary == nil {
			return "DAILY SUMMARY"
		}
		d := e.Summary
		return fmt.Sprintf("DAILY %s entries=%d deployed $%.2f settled=%d (W%d/L%d) pnl %s bankroll $%.2f",
			d.Date.Format("2006-01-02"), d.Entries, d.Deployed, d.Settled, d.Wins, d.Losses,
			signedUSD(d.RealizedPnL), d.Bankroll)
	case domain.EventKillSwitch:
		return fmt.Sprintf("KILL SWITCH %s", e.Message)
	case domain.EventError:
		return fmt.Sprintf("ERROR %s %s", q, e.Message)
	}
	return fmt.Sprintf("%s %s %s", e.Type, q, e.Message)
}

func legsLabel(legs []domain.Leg) string {
	parts := make([]string, len(legs))
	for i, l := range legs {
		parts[i] = fmt.Sprintf("%s@%.3f", l.Side, l.Price)
	}
	return strings.Join(parts, " + ")
}

func attemptsLabel(attempts []domain.OrderAttempt) string {
	if len(attempts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if !a.HasFill() {
			parts = append(parts, fmt.Sprintf("%s %s %s", a.Side, a.Outcome, a.State))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %.2f@%.3f", a.Side, a.Outcome, a.FilledSize, a.AvgFillPrice))
	}
	return strings.Join(parts, ", ")
}

func signedUSD(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}
