package backtest

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteReport renders one result as a table.
func WriteReport(w io.Writer, res *Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Backtest %s (%s)", res.StrategyID, res.Market))

	t.AppendRows([]table.Row{
		{"Period", fmt.Sprintf("%s ~ %s", res.Start.Format("2006-01-02 15:04"), res.End.Format("2006-01-02 15:04"))},
		{"Initial balance", res.InitialBalance.StringFixed(0)},
		{"Final value", res.FinalValue.StringFixed(0)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Total return", formatPct(res.Metrics.TotalReturn)},
		{"Buy & hold return", formatPct(res.Metrics.BuyHoldReturn)},
		{"Max drawdown", formatPct(res.Metrics.MaxDrawdown)},
		{"Sharpe ratio", fmt.Sprintf("%.2f", res.Metrics.SharpeRatio)},
		{"Win rate", fmt.Sprintf("%s (%d/%d)", formatPct(res.Metrics.WinRate), res.Metrics.Wins, res.Metrics.RoundTrips)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Trades", len(res.Trades)},
		{"Failed orders", res.FailedOrders},
	})
	t.Render()
}

// WriteComparison renders several results side by side, one row per strategy.
func WriteComparison(w io.Writer, results []*Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Strategy", "Market", "Return", "Buy&Hold", "MDD", "Sharpe", "Win rate", "Trades"})
	for _, res := range results {
		t.AppendRow(table.Row{
			res.StrategyID,
			res.Market,
			formatPct(res.Metrics.TotalReturn),
			formatPct(res.Metrics.BuyHoldReturn),
			formatPct(res.Metrics.MaxDrawdown),
			fmt.Sprintf("%.2f", res.Metrics.SharpeRatio),
			formatPct(res.Metrics.WinRate),
			len(res.Trades),
		})
	}
	t.Render()
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}
