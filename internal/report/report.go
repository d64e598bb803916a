// Package report renders batch results to the console and to files.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"trawl"
)

// TargetResult captures one outcome in serializable form.
type TargetResult struct {
	Target      string        `json:"target"`
	ExecutionID string        `json:"execution_id"`
	Status      int           `json:"status,omitempty"`
	Bytes       int64         `json:"bytes"`
	Duration    time.Duration `json:"duration"`
	Failure     string        `json:"failure,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// BatchReport is the full record of one batch run.
type BatchReport struct {
	BatchID   string         `json:"batch_id"`
	Started   time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Targets   int            `json:"targets"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []TargetResult `json:"results"`
}

// NewTargetResult converts an outcome into its report form.
func NewTargetResult(outcome trawl.Outcome) TargetResult {
	result := TargetResult{
		Target:      outcome.Target,
		ExecutionID: outcome.ExecutionID,
		Status:      outcome.Status,
		Bytes:       outcome.Bytes,
		Duration:    outcome.Duration,
	}

	if outcome.Failed() {
		result.Failure = outcome.Kind().String()
		result.Error = outcome.Err.Error()
	}

	return result
}

// BatchStartInfo describes a batch before its first unit completes.
type BatchStartInfo struct {
	BatchID string
	Targets []string
}

type Reporter interface {
	HandleBatchStart(info BatchStartInfo)
	HandleOutcome(outcome trawl.Outcome)
	HandleBatchResult(result BatchReport)
	Flush() error
}

// ReporterGroup fans every event out to a set of reporters.
type ReporterGroup struct {
	reporters []Reporter
}

// NewGroup assembles the reporters selected on the command line: outcome
// lines on out (JSON lines instead when jsonLines is set), plus a full JSON
// report written to filePath when it is non-empty.
func NewGroup(out io.Writer, jsonLines bool, filePath string) *ReporterGroup {
	reporters := make([]Reporter, 0, 2)

	if jsonLines {
		reporters = append(reporters, newJSONLineReporter(out))
	} else {
		reporters = append(reporters, newConsoleReporter(out))
	}

	if filePath != "" {
		reporters = append(reporters, newFileReporter(filePath))
	}

	return &ReporterGroup{reporters: reporters}
}

func (g *ReporterGroup) HandleBatchStart(info BatchStartInfo) {
	for _, reporter := range g.reporters {
		reporter.HandleBatchStart(info)
	}
}

func (g *ReporterGroup) HandleOutcome(outcome trawl.Outcome) {
	for _, reporter := range g.reporters {
		reporter.HandleOutcome(outcome)
	}
}

func (g *ReporterGroup) HandleBatchResult(result BatchReport) {
	for _, reporter := range g.reporters {
		reporter.HandleBatchResult(result)
	}
}

func (g *ReporterGroup) Flush() error {
	var firstErr error
	for _, reporter := range g.reporters {
		if err := reporter.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// consoleReporter prints one line per outcome, in completion order:
//
//	<target> page is <N> bytes
//	<target> generated an exception: <description>
type consoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleReporter(out io.Writer) Reporter {
	return &consoleReporter{out: out}
}

func (c *consoleReporter) HandleBatchStart(info BatchStartInfo) {}

func (c *consoleReporter) HandleOutcome(outcome trawl.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, outcome.String())
}

func (c *consoleReporter) HandleBatchResult(result BatchReport) {}

func (c *consoleReporter) Flush() error {
	return nil
}

// jsonLineReporter prints one JSON object per outcome.
type jsonLineReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func newJSONLineReporter(out io.Writer) Reporter {
	return &jsonLineReporter{out: out}
}

func (j *jsonLineReporter) HandleBatchStart(info BatchStartInfo) {}

func (j *jsonLineReporter) HandleOutcome(outcome trawl.Outcome) {
	data, err := json.Marshal(NewTargetResult(outcome))
	if err != nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	fmt.Fprintln(j.out, string(data))
}

func (j *jsonLineReporter) HandleBatchResult(result BatchReport) {}

func (j *jsonLineReporter) Flush() error {
	return nil
}

// fileReporter collects the batch result and writes it as an indented JSON
// document on Flush.
type fileReporter struct {
	path   string
	mu     sync.Mutex
	result *BatchReport
}

func newFileReporter(path string) Reporter {
	return &fileReporter{path: path}
}

func (f *fileReporter) HandleBatchStart(info BatchStartInfo) {}

func (f *fileReporter) HandleOutcome(outcome trawl.Outcome) {}

func (f *fileReporter) HandleBatchResult(result BatchReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = &result
}

func (f *fileReporter) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.result == nil {
		return fmt.Errorf("file reporter has no batch result")
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	data, err := json.MarshalIndent(f.result, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing report: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}
