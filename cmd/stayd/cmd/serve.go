package cmd

import (
	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"

	"github.com/StanleyZhang1992/stayd/internal/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve [flags] [-- command args...]",
	Short: "Launch and supervise the service workers",
	Long: `Serve binds the service port once, starts the configured number of
worker processes sharing that socket, and supervises them until shutdown.

The worker command comes from configuration; arguments after -- override it:

  stayd serve
  stayd serve -- uvicorn app.main:app --fd 3
  STAYD_WORKERS=4 stayd serve

Exit is non-zero when startup fails or any worker exits on its own. SIGTERM
drains workers within the configured grace period and exits zero.`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Command = args
	}

	logger := newLogger(cfg)
	defer logger.Close()

	s := supervisor.New(cfg, version.Version, logger)
	code, err := s.Run()
	exitCode = code
	return err
}
