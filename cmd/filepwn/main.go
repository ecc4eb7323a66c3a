package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "filepwn",
	Short: "Recursively set ownership and permissions on a directory tree",
	Long: `filepwn resolves a user and group against the account and group
databases, walks every file and directory below a path and applies one
mode to files, another to directories, and the resolved owner to both.

Failures on individual entries are reported and skipped; the run only
aborts on errors detected before anything is changed.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runApply,
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(reportCmd)
}
