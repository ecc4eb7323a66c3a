package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelscutari/filepwn/internal/identity"
	"github.com/michaelscutari/filepwn/internal/journal"
	"github.com/michaelscutari/filepwn/internal/pathutil"
	"github.com/michaelscutari/filepwn/internal/run"
	"github.com/michaelscutari/filepwn/internal/walk"
)

var (
	applyPath       string
	applyUser       string
	applyGroup      string
	applyFileMode   string
	applyDirMode    string
	applyPasswd     string
	applyGroupFile  string
	applyStrict     bool
	applyExclude    []string
	applyDryRun     bool
	applyJournalDir string
	applyRetention  int
	applyBatchSize  int
	applyVerbose    bool
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&applyPath, "path", "P", "", "Path to the directory tree to update")
	flags.StringVarP(&applyUser, "user", "u", "", "Name of the owning user")
	flags.StringVarP(&applyGroup, "group", "g", "", "Name of the owning group")
	flags.StringVarP(&applyFileMode, "file-permissions", "f", "", "File permissions, in octal")
	flags.StringVarP(&applyDirMode, "directory-permissions", "d", "", "Directory permissions, in octal")
	flags.StringVar(&applyPasswd, "passwd-file", identity.DefaultPasswdPath, "Account database used to resolve --user")
	flags.StringVar(&applyGroupFile, "group-file", identity.DefaultGroupPath, "Group database used to resolve --group")
	flags.BoolVar(&applyStrict, "strict", false, "Abort the walk when a directory cannot be listed")
	flags.StringSliceVarP(&applyExclude, "exclude", "e", nil, "Regex patterns of paths to leave untouched (can be repeated)")
	flags.BoolVar(&applyDryRun, "dry-run", false, "Resolve and walk, but change nothing")
	flags.StringVar(&applyJournalDir, "journal-dir", "", "Directory to record a run journal in (empty = no journal)")
	flags.IntVar(&applyRetention, "retention", 10, "Number of journals to retain (0 = unlimited)")
	flags.IntVar(&applyBatchSize, "journal-batch-size", journal.DefaultBatchSize, "Journal rows buffered per write")
	flags.BoolVarP(&applyVerbose, "verbose", "v", false, "Enable debug logging")

	for _, name := range []string{"path", "user", "group", "file-permissions", "directory-permissions"} {
		rootCmd.MarkFlagRequired(name)
	}
}

func runApply(cmd *cobra.Command, args []string) error {
	log, err := newLogger(applyVerbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	opts := walk.DefaultOptions()
	if applyStrict {
		opts.WithListPolicy(walk.ListAbort)
	}
	for _, pattern := range applyExclude {
		if err := opts.AddExcludePattern(pattern); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	cfg := run.DefaultConfig().
		WithDatabases(applyPasswd, applyGroupFile).
		WithWalk(opts).
		WithDryRun(applyDryRun)

	var (
		runOpts []run.Option
		mgr     *journal.Manager
		jrnl    *journal.Journal
	)
	if applyJournalDir != "" {
		dir, err := filepath.Abs(applyJournalDir)
		if err != nil {
			return fmt.Errorf("failed to resolve journal path: %w", err)
		}
		mgr = journal.NewManager(dir, applyRetention, log)
		if applyBatchSize > 0 {
			mgr.SetBatchSize(applyBatchSize)
		}
		jrnl, err = mgr.Open()
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		runOpts = append(runOpts, run.WithRecorder(jrnl))
	}

	startTime := time.Now()
	res, err := run.New(cfg, log, runOpts...).Run(run.Request{
		Root:     pathutil.Normalize(applyPath),
		User:     applyUser,
		Group:    applyGroup,
		FileMode: applyFileMode,
		DirMode:  applyDirMode,
	})
	if err != nil {
		if jrnl != nil {
			mgr.Abort(jrnl)
		}
		return err
	}

	journalPath := ""
	if jrnl != nil {
		journalPath, err = mgr.Commit(jrnl)
		if err != nil {
			log.Warn("failed to save journal", zap.Error(err))
		}
	}

	printSummary(cmd.OutOrStdout(), res, journalPath, time.Since(startTime))
	return nil
}

func printSummary(w io.Writer, res *run.Result, journalPath string, elapsed time.Duration) {
	m := res.Meta

	switch {
	case m.FailureCount > 0:
		fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("Completed with %s failures", formatCount(m.FailureCount))))
	case m.DryRun:
		fmt.Fprintln(w, successStyle.Render("Dry run completed, nothing was changed"))
	default:
		fmt.Fprintln(w, successStyle.Render("Completed"))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Summary"))
	fmt.Fprintln(w, row("Root", m.RootPath))
	fmt.Fprintln(w, row("Owner", fmt.Sprintf("%s(%d):%s(%d)", m.User, m.UID, m.Group, m.GID)))
	fmt.Fprintln(w, row("File mode", formatMode(m.FileMode)))
	fmt.Fprintln(w, row("Directory mode", formatMode(m.DirMode)))
	fmt.Fprintln(w, row("Files", formatCount(m.FileCount)))
	fmt.Fprintln(w, row("Directories", formatCount(m.DirCount)))
	if m.FailureCount > 0 {
		fmt.Fprintln(w, row("Failures", formatCount(m.FailureCount)))
	}
	fmt.Fprintln(w, row("Duration", elapsed.Round(time.Millisecond)))
	if journalPath != "" {
		fmt.Fprintln(w, row("Journal", journalPath))
	}

	if err := res.Err(); err != nil {
		fmt.Fprintln(w)
		fmt.Fprint(w, err.Error())
	}
}
