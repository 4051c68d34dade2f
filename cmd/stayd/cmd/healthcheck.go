package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/StanleyZhang1992/stayd/internal/probe"
)

var healthcheckQuiet bool

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe the service liveness endpoint once",
	Long: `Healthcheck issues a single GET against the local liveness endpoint and
exits 0 when it answers 200 within the probe timeout, 1 otherwise. It is the
container HEALTHCHECK command and prints nothing unless the probe fails.`,
	SilenceUsage: true,
	RunE:         runHealthcheck,
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckQuiet, "quiet", "q", false, "suppress output entirely")
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	p := probe.NewProber(cfg.HealthURL(), cfg.ProbeInterval, cfg.ProbeTimeout, probe.NewTracker(cfg.FailureThreshold), logger)

	result := p.Probe(context.Background())
	if !result.Healthy {
		if !healthcheckQuiet {
			if result.Err != "" {
				fmt.Fprintf(os.Stderr, "unhealthy: %s\n", result.Err)
			} else {
				fmt.Fprintf(os.Stderr, "unhealthy: status %d\n", result.StatusCode)
			}
		}
		exitCode = 1
	}
	return nil
}
