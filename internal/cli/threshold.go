package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/gasfree-sentinel/internal/config"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/threshold"
)

var thresholdCmd = &cobra.Command{
	Use:   "threshold",
	Short: "Show or update alert thresholds",
	Long: `Thresholds are kept in their own file. A running daemon re-reads the
file on every tick, so updates apply without a restart.`,
}

var thresholdShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the thresholds in force",
	RunE:  runThresholdShow,
}

var thresholdSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Update one threshold",
	Args:  cobra.ExactArgs(2),
	RunE:  runThresholdSet,
}

func init() {
	rootCmd.AddCommand(thresholdCmd)
	thresholdCmd.AddCommand(thresholdShowCmd)
	thresholdCmd.AddCommand(thresholdSetCmd)
}

func runThresholdShow(_ *cobra.Command, _ []string) error {
	// Threshold edits do not need datastore or channel settings.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	store := initThresholds(cfg, newLogger(cfg))
	th, err := store.Load()
	if err != nil {
		return err
	}

	fmt.Printf("File: %s\n\n", store.Path())
	printThresholds(th)
	return nil
}

func runThresholdSet(_ *cobra.Command, args []string) error {
	// Threshold edits do not need datastore or channel settings.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return model.ConfigError("thresholds", fmt.Errorf("parse value %q: %w", args[1], err))
	}

	store := initThresholds(cfg, newLogger(cfg))
	th, err := store.Set(args[0], value)
	if err != nil {
		return err
	}

	fmt.Printf("Updated %s in %s\n\n", args[0], store.Path())
	printThresholds(th)
	return nil
}

func printThresholds(th model.Thresholds) {
	values := map[string]float64{
		threshold.NameBalanceMin:       th.BalanceMin,
		threshold.NameBalanceReference: th.BalanceReference,
		threshold.NameBalanceRatio:     th.BalanceRatio,
		threshold.NameEnergyRatio:      th.EnergyRatio,
		threshold.NameBandwidthRatio:   th.BandwidthRatio,
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tVALUE\n")
	for _, name := range threshold.Names() {
		fmt.Fprintf(w, "%s\t%g\n", name, values[name])
	}
	w.Flush()
}
