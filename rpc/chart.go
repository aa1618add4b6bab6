package rpc

import (
	"fmt"
	"net/http"

	"github.com/SiddharthManjul/DiffiChain/events"
	"github.com/SiddharthManjul/DiffiChain/log"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleChart renders the ledger growth chart: cumulative commitments,
// spent nullifiers and withdrawals over the event sequence.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	evs, err := s.ledger.Events(1)
	if err != nil {
		log.Error(log.WebMonitoring, "handleChart Events error", err)
		http.Error(w, "failed to read events", http.StatusInternalServerError)
		return
	}

	line := setupGrowthChart(evs)
	page := components.NewPage()
	page.AddCharts(line)
	page.Render(w)
}

func setupGrowthChart(evs []events.Event) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Note Ledger Growth",
			Subtitle: "Cumulative counts by event sequence",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "seq"}),
	)

	seqs, commitments, spent, withdrawals := getGrowthData(evs)
	line.SetXAxis(seqs).
		AddSeries("commitments", commitments).
		AddSeries("spent nullifiers", spent).
		AddSeries("withdrawals", withdrawals)
	return line
}

func getGrowthData(evs []events.Event) ([]string, []opts.LineData, []opts.LineData, []opts.LineData) {
	seqs := make([]string, 0, len(evs))
	commitments := make([]opts.LineData, 0, len(evs))
	spent := make([]opts.LineData, 0, len(evs))
	withdrawals := make([]opts.LineData, 0, len(evs))

	var nCommitted, nSpent, nWithdrawn int
	for _, ev := range evs {
		switch ev.Kind {
		case events.KindNoteCommitted:
			nCommitted++
		case events.KindNullifierSpent:
			nSpent++
		case events.KindWithdrawal:
			nWithdrawn++
		}
		seqs = append(seqs, fmt.Sprintf("%d", ev.Seq))
		commitments = append(commitments, opts.LineData{Value: nCommitted})
		spent = append(spent, opts.LineData{Value: nSpent})
		withdrawals = append(withdrawals, opts.LineData{Value: nWithdrawn})
	}
	return seqs, commitments, spent, withdrawals
}
