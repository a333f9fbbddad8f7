package harness

import (
	"fmt"
	"io"
)

// FixtureReport is the outcome of one fixture.
type FixtureReport struct {
	Title string `json:"title"`

	// RunID is the engine run the fixture executed under. Empty when
	// initialization failed before an engine existed.
	RunID string `json:"run_id,omitempty"`

	// Output is the verifier text, or the initialization or running error.
	Output string `json:"output"`

	// Mismatches counts the expectation errors in Output.
	Mismatches int `json:"mismatches"`

	// Error is set when the fixture could not be initialized or run.
	Error string `json:"error,omitempty"`

	Pass bool `json:"pass"`
}

// Report is the outcome of one document.
type Report struct {
	Title    string          `json:"title"`
	Fixtures []FixtureReport `json:"fixtures"`

	// Failed counts fixtures that errored or had mismatches.
	Failed int `json:"failed"`
}

// NewReport creates an empty report for a document.
func NewReport(title string) *Report {
	return &Report{Title: title, Fixtures: []FixtureReport{}}
}

// Add appends a fixture report and updates the failure count.
func (r *Report) Add(fr FixtureReport) {
	r.Fixtures = append(r.Fixtures, fr)
	if !fr.Pass {
		r.Failed++
	}
}

// Pass reports whether every fixture passed.
func (r *Report) Pass() bool {
	return r.Failed == 0
}

// WriteText prints one "Fixture <title>: <output>" line per fixture.
func (r *Report) WriteText(w io.Writer) error {
	for _, f := range r.Fixtures {
		if _, err := fmt.Fprintf(w, "Fixture %s: %s\n", f.Title, f.Output); err != nil {
			return err
		}
	}
	return nil
}
