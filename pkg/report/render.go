package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// FormatAmount renders micro-units as whole units with thousands separators
// and two decimals: 123456789 -> "123.46".
func FormatAmount(micro int64) string {
	return humanize.FormatFloat("#,###.##", float64(micro)/model.MicroPerUnit)
}

// FormatRatio renders part/whole as a percentage with one decimal. A zero
// whole renders as "0.0%".
func FormatRatio(part, whole int64) string {
	return fmt.Sprintf("%.1f%%", model.Ratio(part, whole)*100)
}

// render lays the sections out in a fixed order: header, transactions,
// address distribution, partners, resources, top request rate.
func (a *Aggregator) render(s *Stats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s as of %s\n", a.opts.Title, a.stamp(s.GeneratedAt))

	large := FormatAmount(a.opts.LargeAmount)
	b.WriteString("\n# Transactions\n")
	fmt.Fprintf(&b, " Last day: %d (failed: %d)\n", s.LastDay.Count, s.LastDay.Failed)
	fmt.Fprintf(&b, " Last day amount: %s (>=%s: %s)\n",
		FormatAmount(s.LastDay.Amount), large, FormatRatio(s.LastDay.Large, s.LastDay.Count))
	fmt.Fprintf(&b, " Last day, new addresses: %d (failed: %d)\n", s.LastDayNew.Count, s.LastDayNew.Failed)
	fmt.Fprintf(&b, " Last day amount, new addresses: %s (>=%s: %s)\n",
		FormatAmount(s.LastDayNew.Amount), large, FormatRatio(s.LastDayNew.Large, s.LastDayNew.Count))
	fmt.Fprintf(&b, " All time: %d (failed: %d)\n", s.AllTime.Count, s.AllTime.Failed)
	fmt.Fprintf(&b, " All time amount: %s\n", FormatAmount(s.AllTime.Amount))

	b.WriteString("\n# Address distribution\n")
	for _, bucket := range s.Buckets {
		fmt.Fprintf(&b, " %-6s transfers: %d addresses (%s)\n",
			bucket.Label, bucket.Count, FormatRatio(bucket.Count, s.AddressTotal))
	}

	b.WriteString("\n# Partners\n")
	b.WriteString(" All time by amount:\n")
	writePartners(&b, s.PartnersAllTime)
	b.WriteString(" Last day by amount:\n")
	writePartners(&b, s.PartnersLastDay)

	b.WriteString("\n# Resources\n")
	if r := s.Resources; r != nil {
		fmt.Fprintf(&b, " Balance: %s\n", FormatAmount(r.ReserveBalance))
		fmt.Fprintf(&b, " Energy: %s / %s (%s)\n",
			humanize.Comma(r.EnergyRemaining), humanize.Comma(r.EnergyLimit), FormatRatio(r.EnergyRemaining, r.EnergyLimit))
		fmt.Fprintf(&b, " Bandwidth: %s / %s (%s)\n",
			humanize.Comma(r.BandwidthRemaining), humanize.Comma(r.BandwidthLimit), FormatRatio(r.BandwidthRemaining, r.BandwidthLimit))
		fmt.Fprintf(&b, " Transfers left by energy, new address: %s\n", humanize.Comma(r.EstimatedTransfersWithActivation()))
		fmt.Fprintf(&b, " Transfers left by energy, active address: %s\n", humanize.Comma(r.EstimatedTransfersWithoutActivation()))
		fmt.Fprintf(&b, " Transfers left by bandwidth: %s\n", humanize.Comma(r.EstimatedBandwidthTransfers()))
	} else {
		b.WriteString(" n/a\n")
	}

	b.WriteString("\n# Top request rate\n")
	if s.TopRoute != nil {
		fmt.Fprintf(&b, " Route: %s\n", s.TopRoute.Route)
		fmt.Fprintf(&b, " Rate: %.2f/s\n", s.TopRoute.Rate)
	} else {
		b.WriteString(" n/a\n")
	}

	return b.String()
}

func writePartners(b *strings.Builder, ranking []model.PartnerVolume) {
	if len(ranking) == 0 {
		b.WriteString("   none\n")
		return
	}
	for i, p := range ranking {
		fmt.Fprintf(b, "   %d. %s, transfers: %d, amount: %s\n", i+1, p.Name, p.Count, FormatAmount(p.Amount))
	}
}
