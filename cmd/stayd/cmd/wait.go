package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/StanleyZhang1992/stayd/internal/probe"
	"github.com/StanleyZhang1992/stayd/pkg/retry"
)

var waitTimeout time.Duration

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Block until the service answers its liveness probe",
	Long: `Wait polls the local liveness endpoint with backoff until it answers 200
or the deadline passes. Useful in entrypoint scripts and CI that need the
service up before proceeding:

  stayd wait --timeout 30s && run-migrations.sh`,
	SilenceUsage: true,
	RunE:         runWait,
}

func init() {
	rootCmd.AddCommand(waitCmd)
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 60*time.Second, "how long to keep trying before giving up")
}

func runWait(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	p := probe.NewProber(cfg.HealthURL(), cfg.ProbeInterval, cfg.ProbeTimeout, probe.NewTracker(cfg.FailureThreshold), logger)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	retryCfg := retry.Config{
		MaxRetries:     1 << 20,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2,
	}

	err = retry.Do(ctx, retryCfg, func() error {
		result := p.Probe(ctx)
		if result.Healthy {
			return nil
		}
		if result.Err != "" {
			return fmt.Errorf("%s", result.Err)
		}
		return fmt.Errorf("status %d", result.StatusCode)
	})
	if err != nil {
		exitCode = 1
		return fmt.Errorf("service did not become healthy within %s: %w", waitTimeout, err)
	}

	fmt.Printf("service healthy at %s\n", cfg.HealthURL())
	return nil
}
