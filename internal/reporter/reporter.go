package reporter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/limitwatch/limitwatch/internal/database"
	"github.com/limitwatch/limitwatch/internal/models"
)

// Periods accepted by GenerateReport
var Periods = []string{"day", "today", "week", "month"}

// Reporter handles report generation
type Reporter struct {
	repo *database.Repository
	now  func() time.Time
}

// New creates a new reporter
func New(repo *database.Repository) *Reporter {
	return &Reporter{
		repo: repo,
		now:  time.Now,
	}
}

// GenerateReport generates a report for the specified period
func (r *Reporter) GenerateReport(periodType string) (*models.Report, error) {
	period, err := GetPeriod(periodType, r.now())
	if err != nil {
		return nil, err
	}

	// SQL does the counting
	sources, err := r.repo.GetSourceSummaryBetween(period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get source summary: %w", err)
	}
	markers, err := r.repo.GetMarkerSummaryBetween(period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get marker summary: %w", err)
	}
	responses, err := r.repo.GetResponseCountsBetween(period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get response counts: %w", err)
	}
	readErrors, err := r.repo.CountErrorsBetween(period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("failed to count read errors: %w", err)
	}

	// Runtime calculates totals and percentages
	var total int
	for _, s := range sources {
		total += s.Events
	}
	if total > 0 {
		for i := range sources {
			sources[i].Percentage = float64(sources[i].Events) / float64(total) * 100.0
		}
	}

	return &models.Report{
		Period:      *period,
		TotalEvents: total,
		Responses:   *responses,
		Sources:     sources,
		Markers:     markers,
		ReadErrors:  readErrors,
		GeneratedAt: r.now(),
	}, nil
}

// GetPeriod calculates the time range for a report ending in the period
// that contains now
func GetPeriod(periodType string, now time.Time) (*models.ReportPeriod, error) {
	var start, end time.Time

	switch periodType {
	case "day", "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 0, 1)

	case "week":
		// Start of week (Monday)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	default:
		return nil, fmt.Errorf("invalid period type: %s (valid: day, week, month)", periodType)
	}

	return &models.ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// FormatReportText formats the report as human-readable text
func (r *Reporter) FormatReportText(report *models.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Limit Report - %s\n", report.Period.Type)
	fmt.Fprintf(&b, "Period: %s to %s\n",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Limits reached: %d\n", report.TotalEvents)

	if report.TotalEvents == 0 {
		b.WriteString("\nNo limits reached in this period.\n")
		if report.ReadErrors > 0 {
			fmt.Fprintf(&b, "Snapshot read errors: %d\n", report.ReadErrors)
		}
		return b.String()
	}

	resp := report.Responses
	fmt.Fprintf(&b, "Acknowledged: %d  Extended: %d (%s)  Stopped: %d  Unanswered: %d\n",
		resp.Acknowledged, resp.Extended, formatMinutes(resp.ExtensionMinutes), resp.Stopped, resp.Unanswered)
	fmt.Fprintf(&b, "Snapshot read errors: %d\n\n", report.ReadErrors)

	fmt.Fprintf(&b, "%-30s %10s %10s\n", "Source", "Events", "Percent")
	b.WriteString(strings.Repeat("-", 52) + "\n")
	for _, s := range report.Sources {
		fmt.Fprintf(&b, "%-30s %10d %9.1f%%\n", truncate(s.Source, 30), s.Events, s.Percentage)
	}

	if len(report.Markers) > 0 {
		fmt.Fprintf(&b, "\n%-30s %10s\n", "Marker", "Events")
		b.WriteString(strings.Repeat("-", 41) + "\n")
		for _, m := range report.Markers {
			fmt.Fprintf(&b, "%-30s %10d\n", truncate(m.Marker, 30), m.Events)
		}
	}

	return b.String()
}

// FormatReportJSON formats the report as JSON
func (r *Reporter) FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// FormatReportYAML formats the report as YAML
func (r *Reporter) FormatReportYAML(report *models.Report) (string, error) {
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return string(data), nil
}

// Format renders the report in the named format: text, json or yaml
func (r *Reporter) Format(report *models.Report, format string) (string, error) {
	switch format {
	case "", "text":
		return r.FormatReportText(report), nil
	case "json":
		return r.FormatReportJSON(report)
	case "yaml":
		return r.FormatReportYAML(report)
	default:
		return "", fmt.Errorf("unknown format: %s (valid: text, json, yaml)", format)
	}
}

func formatMinutes(m int) string {
	if m >= 60 {
		return fmt.Sprintf("%dh%02dm", m/60, m%60)
	}
	return fmt.Sprintf("%dm", m)
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
