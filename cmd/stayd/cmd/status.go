package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/StanleyZhang1992/stayd/internal/admin"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show supervisor and worker status",
	Long: `Status queries the running supervisor over its loopback admin port and
displays instance health, probe state, and per-worker resource usage.`,
	SilenceUsage: true,
	RunE:         runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "output format: table or json")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/status", cfg.AdminAddr())
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to reach supervisor at %s (is it running?): %w", cfg.AdminAddr(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin API error (status %d): %s", resp.StatusCode, string(body))
	}

	var status admin.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}

	if statusOutput == "json" {
		output, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Instance:  %s (v%s)\n", status.Info.InstanceID, status.Info.Version)
	fmt.Printf("PID:       %d\n", status.Info.PID)
	fmt.Printf("Port:      %d\n", status.Info.Port)
	fmt.Printf("Uptime:    %s\n", status.Uptime)
	if state, ok := status.Health["state"]; ok {
		fmt.Printf("Health:    %v\n", state)
	}
	if failures, ok := status.Health["consecutive_failures"]; ok {
		fmt.Printf("Failures:  %v consecutive\n", failures)
	}
	fmt.Println()

	if len(status.Workers) == 0 {
		fmt.Println("No workers running")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "PID", "Uptime", "RSS", "CPU%")
	for _, w := range status.Workers {
		table.Append(
			fmt.Sprintf("%d", w.ID),
			fmt.Sprintf("%d", w.PID),
			w.Uptime,
			formatBytes(w.RSSBytes),
			fmt.Sprintf("%.1f", w.CPUPercent),
		)
	}
	table.Render()
	return nil
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
