// Package reporter turns ledger aggregations into human-readable
// reports: per-target daily/weekly/monthly totals and progress toward
// the configured daily goal.
package reporter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"playtrack/internal/ledger"
)

// Summary is one target's aggregated view.
type Summary struct {
	Target         string
	TodaySeconds   int64
	WeeklySeconds  int64
	MonthlySeconds int64
	TotalSeconds   int64
}

// Report covers every known target at a point in time.
type Report struct {
	Period      string
	Targets     []Summary
	GoalMinutes int
	GeneratedAt time.Time
}

// Reporter reads the ledger; it never mutates it.
type Reporter struct {
	store       *ledger.Store
	goalMinutes int
}

// New creates a reporter over the given store.
func New(store *ledger.Store, goalMinutes int) *Reporter {
	return &Reporter{store: store, goalMinutes: goalMinutes}
}

// Generate builds a report for all targets. period is "day", "week" or
// "month" and selects which column drives the sort order.
func (r *Reporter) Generate(period string) (*Report, error) {
	switch period {
	case "day", "today", "week", "month":
	default:
		return nil, fmt.Errorf("invalid period type: %s (valid: day, week, month)", period)
	}

	targets, err := r.store.Targets()
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	summaries := make([]Summary, 0, len(targets))
	for _, target := range targets {
		s := Summary{Target: target}
		if s.TodaySeconds, err = r.store.TodaySeconds(target); err != nil {
			return nil, err
		}
		if s.WeeklySeconds, err = r.store.WeeklySeconds(target); err != nil {
			return nil, err
		}
		if s.MonthlySeconds, err = r.store.MonthlySeconds(target); err != nil {
			return nil, err
		}
		if s.TotalSeconds, err = r.store.TotalSeconds(target); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		switch period {
		case "week":
			if a.WeeklySeconds != b.WeeklySeconds {
				return a.WeeklySeconds > b.WeeklySeconds
			}
		case "month":
			if a.MonthlySeconds != b.MonthlySeconds {
				return a.MonthlySeconds > b.MonthlySeconds
			}
		default:
			if a.TodaySeconds != b.TodaySeconds {
				return a.TodaySeconds > b.TodaySeconds
			}
		}
		return a.Target < b.Target
	})

	return &Report{
		Period:      period,
		Targets:     summaries,
		GoalMinutes: r.goalMinutes,
		GeneratedAt: time.Now(),
	}, nil
}

// FormatText renders the report for the terminal.
func (r *Reporter) FormatText(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Playtime Report - %s\n", report.Period)
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04"))

	if len(report.Targets) == 0 {
		b.WriteString("No time recorded yet.\n")
		return b.String()
	}

	for _, s := range report.Targets {
		fmt.Fprintf(&b, "%s\n", s.Target)
		fmt.Fprintf(&b, "  today: %s  week: %s  month: %s  total: %s\n",
			FormatHMS(s.TodaySeconds),
			FormatHMS(s.WeeklySeconds),
			FormatHMS(s.MonthlySeconds),
			FormatHMS(s.TotalSeconds))
		if report.GoalMinutes > 0 {
			goalSeconds := int64(report.GoalMinutes) * 60
			pct := float64(s.TodaySeconds) / float64(goalSeconds) * 100.0
			if pct > 100 {
				pct = 100
			}
			fmt.Fprintf(&b, "  goal: %.0f%% of %dm\n", pct, report.GoalMinutes)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatHMS renders whole seconds as HH:MM:SS.
func FormatHMS(seconds int64) string {
	hrs := seconds / 3600
	mins := (seconds % 3600) / 60
	secs := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hrs, mins, secs)
}
