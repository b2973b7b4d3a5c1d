package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/monitor"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate thresholds once and alert if any is breached",
	Long: `Fetch a snapshot, evaluate the thresholds in force and send an alert
batch when something is breached. The cooldown starts fresh with every
process, so a one-off check always alerts on a breach.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	sched, _, err := initScheduler(cfg, logger)
	if err != nil {
		return err
	}

	res, err := sched.CheckNow(cmd.Context())
	if err != nil {
		return err
	}

	if len(res.Breaches) == 0 {
		fmt.Println("all resources above thresholds")
		return nil
	}
	for _, b := range res.Breaches {
		fmt.Printf("%-14s %s\n", b.Class, b.Message)
	}
	fmt.Printf("\nalert batch: %s\n", res.Outcome)

	if res.Outcome == monitor.OutcomeFailed {
		return fmt.Errorf("alert not delivered: %s", res.Error)
	}
	return nil
}
