package mcp

import (
	"fmt"
	"strings"

	"github.com/resumeassist/usagegate/pkg/models"
)

// formatStatus renders today's usage for one user.
func formatStatus(st models.UsageStatus) string {
	pct := float64(0)
	if st.Limit > 0 {
		pct = float64(st.Used) / float64(st.Limit) * 100
	}
	return fmt.Sprintf("Usage for %s on %s\n"+
		"  Used:      %d\n"+
		"  Limit:     %d\n"+
		"  Remaining: %d\n"+
		"  Usage:     %.1f%%\n",
		st.UserID, st.Date, st.Used, st.Limit, st.Remaining, pct)
}

func formatHistory(recs []models.UsageRecord, limit int64) string {
	if len(recs) == 0 {
		return "No usage recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %8s %10s\n", "Date", "Used", "Remaining")
	b.WriteString(strings.Repeat("-", 32) + "\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "%-12s %8d %10d\n", r.Date, r.RequestCount, max(limit-r.RequestCount, 0))
	}
	return b.String()
}

func formatLimit(limit int64) string {
	return fmt.Sprintf("Daily limit: %d units per user (UTC day)\n"+
		"  analyze:  %d\n"+
		"  chat:     %d\n"+
		"  jobmatch: %d\n"+
		"  revision: %d\n",
		limit, models.CostAnalyze, models.CostChat, models.CostJobMatch, models.CostRevision)
}

func formatDecisions(ds []models.Decision) string {
	if len(ds) == 0 {
		return "No decisions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-24s %-18s %6s %8s\n", "Time", "User", "Outcome", "Cost", "Count")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, d := range ds {
		user := d.UserID
		if len(user) > 24 {
			user = user[:10] + "..." + user[len(user)-11:]
		}
		fmt.Fprintf(&b, "%-20s %-24s %-18s %6d %8d\n",
			d.CreatedAt.Format("2006-01-02 15:04:05"), user, d.Outcome, d.Cost, d.RequestCount)
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No decisions recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-18s %8s %8s\n", "Day", "Outcome", "Count", "Units")
	b.WriteString(strings.Repeat("-", 49) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-12s %-18s %8d %8d\n", s.Day, s.Outcome, s.Count, s.Units)
	}
	return b.String()
}
