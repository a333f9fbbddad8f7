package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a report the way the test command prints it, headed by
// the fixture count. Run ids are left out so snapshots are stable.
func Snapshot(r *Report) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Total fixtures: %d\n", len(r.Fixtures))
	_ = r.WriteText(&buf)
	return buf.Bytes()
}

// AssertGolden compares the report snapshot against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, r *Report) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(r))
}

// RunWithGolden loads the document at path, runs it and compares the
// snapshot against the golden file called name.
func RunWithGolden(t *testing.T, name, path string, opts ...Option) *Report {
	t.Helper()

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	report, err := NewRunner(opts...).Run(t.Context(), doc)
	if err != nil {
		t.Fatalf("run %s: %v", path, err)
	}
	AssertGolden(t, name, report)
	return report
}
