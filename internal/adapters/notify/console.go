package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Console implements ports.Notifier with one line per event.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsole writes to stdout.
func NewConsole() *Console {
	return NewConsoleWriter(os.Stdout)
}

// NewConsoleWriter writes to w.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Notify prints the event. The daily summary is also printed as a table.
func (c *Console) Notify(_ context.Context, e domain.Event) error {
	at := e.At
	if at.IsZero() {
		at = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := fmt.Sprintf("[%s]", at.Format("15:04:05"))
	if e.Sport != "" {
		prefix += " " + e.Sport
	}
	fmt.Fprintf(c.out, "%s %s\n", prefix, formatEvent(e))

	if e.Type == domain.EventDailySummary && e.Summary != nil {
		c.printDailies([]domain.DailySummary{*e.Summary})
	}
	return nil
}

// ReportInput is the data shown by -report.
type ReportInput struct {
	Ledger   domain.Ledger
	Open     []domain.Position
	Dailies  []domain.DailySummary
	Halts    map[string]string
	Settled  []domain.Position
	Reported time.Time
}

// PrintReport prints the ledger, the open positions and the daily history.
func (c *Console) PrintReport(in ReportInput) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n── LEDGER (%s) ──\n", in.Reported.UTC().Format("2006-01-02 15:04 UTC"))
	l := in.Ledger
	fmt.Fprintf(c.out, "  Bankroll:       $%.2f\n", l.Bankroll)
	fmt.Fprintf(c.out, "  Day:            %s\n", l.Day.Format("2006-01-02"))
	fmt.Fprintf(c.out, "  Deployed today: $%.2f (%d entries)\n", l.DeployedToday, l.EntriesToday)
	fmt.Fprintf(c.out, "  Realized today: %s (W%d/L%d)\n", signedUSD(l.RealizedToday), l.WinsToday, l.LossesToday)
	if l.Cooldown.Active(in.Reported) {
		fmt.Fprintf(c.out, "  Cooldown:       until %s\n", l.Cooldown.CooldownUntil.UTC().Format("15:04:05"))
	}

	fmt.Fprintf(c.out, "\n── OPEN POSITIONS (%d) ──\n", len(in.Open))
	if len(in.Open) > 0 {
		c.printPositions(in.Open, in.Reported)
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}

	if len(in.Settled) > 0 {
		fmt.Fprintf(c.out, "\n── SETTLED (%d) ──\n", len(in.Settled))
		c.printSettled(in.Settled)
	}

	fmt.Fprintf(c.out, "\n── HALTED MARKETS (%d) ──\n", len(in.Halts))
	if len(in.Halts) > 0 {
		ids := make([]string, 0, len(in.Halts))
		for id := range in.Halts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(c.out, "  %-20s %s\n", id, in.Halts[id])
		}
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}

	fmt.Fprintf(c.out, "\n── DAILY HISTORY (%d days) ──\n", len(in.Dailies))
	if len(in.Dailies) > 0 {
		c.printDailies(in.Dailies)
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}
}

func (c *Console) printPositions(ps []domain.Position, now time.Time) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Strat", "Market", "Sport", "Legs", "Cost", "Ends in", "Flags")
	for _, p := range ps {
		var legs string
		for i, l := range p.Legs {
			if i > 0 {
				legs += " "
			}
			legs += fmt.Sprintf("%s %.2f@%.3f", l.Side, l.Shares, l.EntryPrice)
		}
		flags := ""
		if p.LegRisk {
			flags = "LEG RISK"
		}
		table.Append(
			p.Strategy.Icon(),
			domain.TruncateQuestion(p.Question, p.MarketID, 40),
			p.Sport,
			legs,
			fmt.Sprintf("$%.2f", p.Cost),
			p.EndDate.Sub(now).Truncate(time.Minute).String(),
			flags,
		)
	}
	table.Render()
}

func (c *Console) printSettled(ps []domain.Position) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Winner", "Cost", "Payout", "P&L")
	for _, p := range ps {
		table.Append(
			domain.TruncateQuestion(p.Question, p.MarketID, 40),
			string(p.Winner),
			fmt.Sprintf("$%.2f", p.Cost),
			fmt.Sprintf("$%.2f", p.Payout),
			signedUSD(p.PnL),
		)
	}
	table.Render()
}

func (c *Console) printDailies(ds []domain.DailySummary) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Date", "Entries", "Deployed", "Settled", "W/L", "P&L", "Bankroll")
	for _, d := range ds {
		table.Append(
			d.Date.Format("2006-01-02"),
			fmt.Sprintf("%d", d.Entries),
			fmt.Sprintf("$%.2f", d.Deployed),
			fmt.Sprintf("%d", d.Settled),
			fmt.Sprintf("%d/%d", d.Wins, d.Losses),
			signedUSD(d.RealizedPnL),
			fmt.Sprintf("$%.2f", d.Bankroll),
		)
	}
	table.Render()
}
