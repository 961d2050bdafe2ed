package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/cache"
	"github.com/sells-group/insight-api/internal/report"
	"github.com/sells-group/insight-api/internal/store"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <url>",
	Short: "Export an archived analysis to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		key, err := cache.Canonicalize(args[0])
		if err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open archive")
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate archive")
		}

		snap, err := st.GetAnalysis(ctx, key)
		if err != nil {
			return eris.Wrap(err, "read archive")
		}
		if snap == nil {
			return eris.Errorf("no archived analysis for %s, run analyze first", key)
		}

		if err := report.WriteWorkbook(snap, exportOut); err != nil {
			return err
		}
		zap.L().Info("workbook written", zap.String("url", key), zap.String("path", exportOut))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "report.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
