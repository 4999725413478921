package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"snaprestore.io/snaprestore-cli/internal/restore"
)

// ReportVersion is the current report format version.
const ReportVersion = "1"

// Report records the outcome of one restore run.
type Report struct {
	Version     string               `json:"version"`
	ID          string               `json:"id"`
	Timestamp   time.Time            `json:"timestamp"`
	MachineID   string               `json:"machine_id,omitempty"`
	Cluster     ClusterInfo          `json:"cluster"`
	Repository  string               `json:"repository"`
	Snapshot    string               `json:"snapshot"`
	Index       string               `json:"index"`
	State       restore.State        `json:"state"`
	Failure     *FailureInfo         `json:"failure,omitempty"`
	Progress    restore.Progress     `json:"progress"`
	Polls       int                  `json:"polls"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
	Transitions []restore.Transition `json:"transitions"`
	Summary     Summary              `json:"summary"`
	Signature   string               `json:"signature,omitempty"`
}

// ClusterInfo identifies the cluster the index was restored to.
type ClusterInfo struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// FailureInfo describes why a run failed.
type FailureInfo struct {
	Kind    restore.Kind `json:"kind"`
	Message string       `json:"message"`
}

// Summary provides an overview of the run.
type Summary struct {
	Success         bool    `json:"success"`
	PercentRestored float64 `json:"percent_restored"`
	RestoreDuration string  `json:"restore_duration"`
}

// ReportBuilder helps construct reports.
type ReportBuilder struct {
	report *Report
}

// NewReportBuilder creates a new report builder.
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{
		report: &Report{
			Version:   ReportVersion,
			Timestamp: time.Now().UTC(),
		},
	}
}

func (b *ReportBuilder) WithID(id string) *ReportBuilder {
	b.report.ID = id
	return b
}

func (b *ReportBuilder) WithMachineID(machineID string) *ReportBuilder {
	b.report.MachineID = machineID
	return b
}

func (b *ReportBuilder) WithClusterURL(url string) *ReportBuilder {
	b.report.Cluster.URL = url
	return b
}

// WithResult copies the outcome of a restore run into the report.
func (b *ReportBuilder) WithResult(res *restore.Result) *ReportBuilder {
	b.report.Cluster.Name = res.Request.Cluster
	b.report.Repository = res.Request.Repository
	b.report.Snapshot = res.Request.Snapshot
	b.report.Index = res.Request.Index
	b.report.State = res.State
	b.report.Progress = res.Progress
	b.report.Polls = res.Polls
	b.report.StartedAt = res.StartedAt.UTC()
	b.report.FinishedAt = res.FinishedAt.UTC()
	b.report.Transitions = make([]restore.Transition, 0, len(res.Transitions))
	for _, t := range res.Transitions {
		t.At = t.At.UTC()
		b.report.Transitions = append(b.report.Transitions, t)
	}

	if res.Err != nil {
		b.report.Failure = &FailureInfo{
			Kind:    restore.KindOf(res.Err),
			Message: res.Err.Error(),
		}
	}
	return b
}

// Build finalizes the report and computes the summary.
func (b *ReportBuilder) Build() *Report {
	b.report.Summary = Summary{
		Success:         b.report.State == restore.StateCompleted,
		PercentRestored: b.report.Progress.Percent(),
	}
	if !b.report.StartedAt.IsZero() && !b.report.FinishedAt.IsZero() {
		b.report.Summary.RestoreDuration = b.report.FinishedAt.Sub(b.report.StartedAt).String()
	}
	return b.report
}

// WriteJSON writes the report to a JSON file.
func WriteJSON(report *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.json", report.Timestamp.Format("20060102_150405"), report.ID)
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

// LoadReport loads a report from a JSON file.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ReportSummary is a lightweight summary for listing reports.
type ReportSummary struct {
	ID        string
	Timestamp time.Time
	Cluster   string
	Index     string
	Snapshot  string
	Success   bool
	Path      string
}

// ListReports returns all reports in the given directory, newest first.
func ListReports(dir string) ([]*ReportSummary, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	var reports []*ReportSummary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		report, err := LoadReport(path)
		if err != nil {
			continue // Skip invalid reports
		}

		reports = append(reports, &ReportSummary{
			ID:        report.ID,
			Timestamp: report.Timestamp,
			Cluster:   report.Cluster.Name,
			Index:     report.Index,
			Snapshot:  report.Snapshot,
			Success:   report.Summary.Success,
			Path:      path,
		})
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.After(reports[j].Timestamp)
	})

	return reports, nil
}
