package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvlint/internal/core"
	"github.com/JonMunkholm/csvlint/internal/logging"
)

// errInvalid signals that validation finished and found errors.
var errInvalid = errors.New("validation failed")

var (
	// Global flags
	verbose   bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "csvlint",
	Short: "Validate CSV files against CSVW metadata or a JSON Table Schema",
	Long: `csvlint checks CSV data against the column types, constraints and keys
declared in CSVW metadata or a JSON Table Schema.

It reports every problem it finds, row by row: missing values, values that do
not parse as their datatype, pattern and length violations, duplicate
primary keys, and foreign keys that reference missing rows in other tables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logging.Setup(os.Stderr, level, logFormat)
	},
}

// Execute runs the root command.
func Execute() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInvalid):
		return 1
	default:
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		if core.IsUserFacing(err) {
			fmt.Fprintln(rootCmd.ErrOrStderr(), core.FormatUserError(err))
		}
		return 2
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log run progress to stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
}
