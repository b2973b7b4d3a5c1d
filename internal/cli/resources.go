package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/report"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/resource"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Show the provider account's current resources",
	RunE:  runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
}

func runResources(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fetcher, err := resource.New(cfg.Resource.Source, cfg.Resource.URL, cfg.Resource.Timeout)
	if err != nil {
		return err
	}

	snap, err := fetcher.Fetch(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetch resources: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RESOURCE\tREMAINING\tLIMIT\tRATIO\n")
	fmt.Fprintf(w, "balance\t%s\t-\t-\n", report.FormatAmount(snap.ReserveBalance))
	fmt.Fprintf(w, "energy\t%s\t%s\t%s\n",
		humanize.Comma(snap.EnergyRemaining), humanize.Comma(snap.EnergyLimit),
		report.FormatRatio(snap.EnergyRemaining, snap.EnergyLimit))
	fmt.Fprintf(w, "bandwidth\t%s\t%s\t%s\n",
		humanize.Comma(snap.BandwidthRemaining), humanize.Comma(snap.BandwidthLimit),
		report.FormatRatio(snap.BandwidthRemaining, snap.BandwidthLimit))
	w.Flush()

	fmt.Printf("\nTransfers left: %s (new address), %s (active address), %s (bandwidth)\n",
		humanize.Comma(snap.EstimatedTransfersWithActivation()),
		humanize.Comma(snap.EstimatedTransfersWithoutActivation()),
		humanize.Comma(snap.EstimatedBandwidthTransfers()))
	return nil
}
