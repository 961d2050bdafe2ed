package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/insight-api/internal/report"
)

var (
	analyzeQuestions []string
	analyzeRefresh   bool
	analyzeJSON      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Analyze one website and print the insight report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Pipeline.Analyze(ctx, args[0], analyzeQuestions, analyzeRefresh)
		if err != nil {
			return err
		}

		snap := rec.Snapshot()
		if analyzeJSON {
			out, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return eris.Wrap(err, "encode analysis")
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Print(report.FormatText(snap))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringSliceVarP(&analyzeQuestions, "question", "q", nil, "custom question to extract (repeatable)")
	analyzeCmd.Flags().BoolVar(&analyzeRefresh, "refresh", false, "drop any cached analysis and rebuild")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full analysis record as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
