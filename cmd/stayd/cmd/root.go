package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/StanleyZhang1992/stayd/internal/config"
	"github.com/StanleyZhang1992/stayd/pkg/logging"
)

var (
	cfgFile  string
	exitCode int
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stayd",
	Short: "Lifecycle supervisor for the StayCircle API",
	Long: `stayd launches the StayCircle service workers on a shared listening
socket, probes their liveness endpoint, and drains them cleanly on SIGTERM.
It never restarts a failed worker; the orchestrator owns remediation.`,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/stayd/stayd.yaml)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
}
