package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build the business digest now",
	Long: `Build the business digest from the transfer ledger and print it.
With --send the digest is also delivered to the digest channels.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().Bool("send", false, "Deliver the digest to the digest channels")
	reportCmd.Flags().Bool("json", false, "Print the collected figures as JSON")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	send, _ := cmd.Flags().GetBool("send")
	asJSON, _ := cmd.Flags().GetBool("json")

	logger := newLogger(cfg)
	sched, _, err := initScheduler(cfg, logger)
	if err != nil {
		return err
	}

	d, err := sched.Digest(cmd.Context(), send)
	if d != nil {
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(d.Stats); encErr != nil {
				return fmt.Errorf("encode digest: %w", encErr)
			}
		} else {
			fmt.Println(d.Text)
		}
	}
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	if send {
		fmt.Fprintln(os.Stderr, "digest sent")
	}
	return nil
}
