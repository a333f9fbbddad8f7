package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Zombieliu/gear/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden snapshots
	Filter   string // document filter (glob on the file name)
	Database string // run log, overrides the config
}

// Golden snapshot states.
const (
	GoldenNone     = ""
	GoldenMatch    = "match"
	GoldenMismatch = "mismatch"
	GoldenUpdated  = "updated"
)

// DocumentResult is the outcome of one fixture document.
type DocumentResult struct {
	Path   string          `json:"path"`
	Report *harness.Report `json:"report"`
	Golden string          `json:"golden,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Documents []DocumentResult `json:"documents"`
	Total     int              `json:"total"`
	Failed    int              `json:"failed"`
}

// WriteText prints the fixture runner layout: the fixture count, then one
// line per fixture.
func (r TestResult) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Total fixtures: %d\n", r.Total); err != nil {
		return err
	}
	for _, d := range r.Documents {
		if err := d.Report.WriteText(w); err != nil {
			return err
		}
		switch d.Golden {
		case GoldenMismatch:
			fmt.Fprintf(w, "Golden %s: snapshot mismatch (run with --update to regenerate)\n", d.Path)
		case GoldenUpdated:
			fmt.Fprintf(w, "Golden %s: updated\n", d.Path)
		}
	}
	if r.Failed > 0 {
		_, err := fmt.Fprintf(w, "%d tests failed\n", r.Failed)
		return err
	}
	return nil
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <path>...",
		Short: "Run fixture documents",
		Long: `Run every fixture of the given documents, or of every .yaml, .yml
and .json document found under the given directories.

Each fixture runs on a fresh engine. The outgoing log and page map are
compared with the fixture's expectations. When a golden snapshot exists
next to a document (golden/<name>.golden) the printed report must match it.

Exit codes:
  0 - All fixtures passed
  1 - One or more fixtures failed
  2 - Command error (invalid paths, invalid documents, etc.)

Examples:
  gtest test ./fixtures
  gtest test ./fixtures/sync_duplicate.yaml
  gtest test ./fixtures --filter "sync_*"
  gtest test ./fixtures --update
  gtest test ./fixtures --db runs.db --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden snapshots")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter documents by glob pattern")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record runs in this SQLite database")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	files, err := findDocuments(paths, opts.Filter)
	if err != nil {
		_ = out.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find documents", err)
	}

	docs := make([]*harness.Document, 0, len(files))
	total := 0
	for _, path := range files {
		doc, err := harness.LoadDocument(path)
		if err != nil {
			_ = out.Error(ErrCodeLoad, err.Error(), map[string]string{"path": path})
			return WrapExitError(ExitCommandError, "failed to load document", err)
		}
		out.VerboseLog("loaded %s (%d fixtures)", path, len(doc.Fixtures))
		docs = append(docs, doc)
		total += len(doc.Fixtures)
	}

	st, err := opts.openStore(opts.Database)
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	if st != nil {
		defer st.Close()
	}

	engineOpts, err := opts.engineOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid engine config", err)
	}
	runnerOpts := []harness.Option{
		harness.WithLogger(opts.logger()),
		harness.WithEngineOptions(engineOpts...),
	}
	if st != nil {
		runnerOpts = append(runnerOpts, harness.WithStore(st))
	}
	runner := harness.NewRunner(runnerOpts...)

	result := TestResult{Documents: make([]DocumentResult, 0, len(docs)), Total: total}
	for i, doc := range docs {
		report, err := runner.Run(cmd.Context(), doc)
		if err != nil {
			_ = out.Error(ErrCodeRun, err.Error(), map[string]string{"path": files[i]})
			return WrapExitError(ExitCommandError, "run interrupted", err)
		}

		dr := DocumentResult{Path: files[i], Report: report}
		dr.Golden, err = checkGolden(files[i], report, opts.Update)
		if err != nil {
			return WrapExitError(ExitCommandError, "golden snapshot", err)
		}
		result.Failed += report.Failed
		if dr.Golden == GoldenMismatch {
			result.Failed++
		}
		result.Documents = append(result.Documents, dr)
	}

	if err := out.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d tests failed", result.Failed))
	}
	return nil
}

// findDocuments expands directories into the fixture documents they
// contain. Files named explicitly are kept whatever their extension.
func findDocuments(paths []string, filter string) ([]string, error) {
	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("path not found: %s", root)
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "golden" {
					return filepath.SkipDir
				}
				return nil
			}

			ext := filepath.Ext(path)
			if ext != ".yaml" && ext != ".yml" && ext != ".json" {
				return nil
			}
			if filter != "" {
				name := strings.TrimSuffix(filepath.Base(path), ext)
				matched, err := filepath.Match(filter, name)
				if err != nil {
					return fmt.Errorf("invalid filter pattern: %w", err)
				}
				if !matched {
					return nil
				}
			}

			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// goldenFilePath returns the snapshot path for a document.
func goldenFilePath(docFile string) string {
	dir := filepath.Dir(docFile)
	base := filepath.Base(docFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// checkGolden compares the report snapshot with the document's golden
// file, or rewrites it when update is set.
func checkGolden(docFile string, report *harness.Report, update bool) (string, error) {
	path := goldenFilePath(docFile)
	snapshot := harness.Snapshot(report)

	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return GoldenNone, fmt.Errorf("create golden directory: %w", err)
		}
		if err := os.WriteFile(path, snapshot, 0o644); err != nil {
			return GoldenNone, fmt.Errorf("write golden file: %w", err)
		}
		return GoldenUpdated, nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return GoldenNone, nil
	}
	if err != nil {
		return GoldenNone, fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(want, snapshot) {
		return GoldenMismatch, nil
	}
	return GoldenMatch, nil
}
