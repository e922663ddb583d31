package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepExpiry bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the enforcement sweep once",
	Long: `Run the enforcement sweep once against the configured store and exit.

The post-duty pass erases artifact data whose deletion duty is due. With
--expiry (or sweep.expiry_enabled), the expiry pass then removes resources
whose offers carry a due deletion duty.

Examples:
  contract-gate sweep
  contract-gate sweep --expiry`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepExpiry, "expiry", false, "Also run the expiry pass")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sweepExpiry {
		cfg.Sweep.ExpiryEnabled = true
	}
	logger := newLogger(cfg)

	g, err := buildGate(cmd.Context(), cfg, nil, logger)
	if err != nil {
		return err
	}
	defer g.Close()

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range g.scheduler.RunOnce(cmd.Context()) {
		fmt.Fprintf(out, "%-10s checked=%d deleted=%d skipped=%d errors=%d elapsed=%s\n",
			r.Pass, r.Checked, r.Deleted, r.Skipped, r.Errors, r.Elapsed)
		failed += r.Errors
	}
	if failed > 0 {
		return fmt.Errorf("sweep finished with %d errors", failed)
	}
	return nil
}
