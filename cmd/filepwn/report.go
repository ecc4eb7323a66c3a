package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelscutari/filepwn/internal/entry"
	"github.com/michaelscutari/filepwn/internal/journal"

	_ "modernc.org/sqlite"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Display a recorded run journal",
	Long:  `Print the parameters, counts and failures recorded in a run journal.`,
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

var (
	reportDB         string
	reportJournalDir string
	reportLimit      int
	reportEntry      string
)

func init() {
	reportCmd.Flags().StringVar(&reportDB, "db", "", "Path to journal file (default: latest journal in --journal-dir)")
	reportCmd.Flags().StringVar(&reportJournalDir, "journal-dir", "./journal", "Journal directory to take the latest journal from")
	reportCmd.Flags().IntVarP(&reportLimit, "limit", "n", 20, "Maximum number of failures to list")
	reportCmd.Flags().StringVar(&reportEntry, "entry", "", "Show what was recorded for one path")
}

// resolveJournal returns the journal to report on without creating anything.
func resolveJournal() (string, error) {
	path := reportDB
	if path == "" {
		latest, err := journal.NewManager(reportJournalDir, 0, nil).GetLatest()
		if err != nil {
			return "", fmt.Errorf("journal not found in %s: %w", reportJournalDir, err)
		}
		path = latest
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("journal not found: %s", path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to access journal: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("journal path is a directory: %s", path)
	}
	return path, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	path, err := resolveJournal()
	if err != nil {
		return err
	}

	database, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer database.Close()

	if err := journal.ApplyReadPragmas(database); err != nil {
		return fmt.Errorf("failed to apply pragmas: %w", err)
	}

	meta, err := journal.GetRunMeta(database)
	if err != nil {
		return fmt.Errorf("failed to read run metadata: %w", err)
	}
	counts, err := journal.CountByStatus(database)
	if err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}

	out := cmd.OutOrStdout()
	if reportEntry != "" {
		return printEntry(out, database, reportEntry)
	}

	fmt.Fprintln(out, titleStyle.Render("Run Information"))
	fmt.Fprintln(out, row("Journal", path))
	fmt.Fprintln(out, row("Root Path", meta.RootPath))
	fmt.Fprintln(out, row("Owner", fmt.Sprintf("%s(%d):%s(%d)", meta.User, meta.UID, meta.Group, meta.GID)))
	fmt.Fprintln(out, row("File Mode", formatMode(meta.FileMode)))
	fmt.Fprintln(out, row("Directory Mode", formatMode(meta.DirMode)))
	fmt.Fprintln(out, row("Dry Run", meta.DryRun))
	fmt.Fprintln(out, row("Start Time", meta.StartTime.Format(time.RFC3339)))
	if !meta.EndTime.IsZero() {
		fmt.Fprintln(out, row("End Time", meta.EndTime.Format(time.RFC3339)))
		fmt.Fprintln(out, row("Duration", meta.EndTime.Sub(meta.StartTime).Round(time.Second)))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render("Statistics"))
	fmt.Fprintln(out, row("Files", formatCount(meta.FileCount)))
	fmt.Fprintln(out, row("Directories", formatCount(meta.DirCount)))
	for _, s := range []entry.Status{entry.StatusApplied, entry.StatusPlanned, entry.StatusFailed} {
		if n := counts[s]; n > 0 {
			fmt.Fprintln(out, row("Entries "+s.String(), formatCount(n)))
		}
	}
	fmt.Fprintln(out, row("Failures", formatCount(meta.FailureCount)))

	if meta.FailureCount == 0 {
		return nil
	}

	failures, err := journal.LoadFailures(database, reportLimit)
	if err != nil {
		return fmt.Errorf("failed to load failures: %w", err)
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "OP\tPATH\tERROR\n")
	for _, f := range failures {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Op, f.Path, f.Message)
	}
	w.Flush()

	if int64(len(failures)) < meta.FailureCount {
		fmt.Fprintf(out, "... and %s more\n", formatCount(meta.FailureCount-int64(len(failures))))
	}

	return nil
}

func printEntry(out io.Writer, database *sql.DB, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	rec, err := journal.GetEntry(database, abs)
	if err != nil {
		return fmt.Errorf("failed to look up entry: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no record for %s", abs)
	}

	fmt.Fprintln(out, titleStyle.Render("Entry"))
	fmt.Fprintln(out, row("Path", rec.Path))
	fmt.Fprintln(out, row("Kind", rec.Kind))
	fmt.Fprintln(out, row("Mode", formatMode(rec.Mode)))
	fmt.Fprintln(out, row("Owner", fmt.Sprintf("%d:%d", rec.UID, rec.GID)))
	fmt.Fprintln(out, row("Status", rec.Status))
	return nil
}
