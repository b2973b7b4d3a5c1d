// Package threshold evaluates resource snapshots against warning levels and
// manages the threshold file those levels are read from.
package threshold

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// Evaluate returns every breached dimension of snap, in the order balance,
// energy, bandwidth. A zero limit never counts as a ratio breach.
func Evaluate(snap model.ResourceSnapshot, th model.Thresholds) []model.Breach {
	var breaches []model.Breach

	if b, ok := evaluateBalance(snap, th); ok {
		breaches = append(breaches, b)
	}
	if b, ok := evaluateRatio(model.EnergyLow, "energy", snap.EnergyRemaining, snap.EnergyLimit, th.EnergyRatio); ok {
		breaches = append(breaches, b)
	}
	if b, ok := evaluateRatio(model.BandwidthLow, "bandwidth", snap.BandwidthRemaining, snap.BandwidthLimit, th.BandwidthRatio); ok {
		breaches = append(breaches, b)
	}

	return breaches
}

// Classes returns the alert classes of breaches, preserving order.
func Classes(breaches []model.Breach) []model.AlertClass {
	classes := make([]model.AlertClass, 0, len(breaches))
	for _, b := range breaches {
		classes = append(classes, b.Class)
	}
	return classes
}

func evaluateBalance(snap model.ResourceSnapshot, th model.Thresholds) (model.Breach, bool) {
	balance := snap.Balance()

	absolute := th.BalanceMin > 0 && balance < th.BalanceMin

	var ratio float64
	relative := false
	if th.BalanceReference > 0 {
		ratio = balance / th.BalanceReference
		relative = ratio < th.BalanceRatio
	}

	if !absolute && !relative {
		return model.Breach{}, false
	}

	floor := th.BalanceMin
	if relative && th.BalanceRatio*th.BalanceReference > floor {
		floor = th.BalanceRatio * th.BalanceReference
	}

	msg := fmt.Sprintf("reserve balance %s is below %s",
		humanize.FormatFloat("#,###.##", balance), humanize.FormatFloat("#,###.##", floor))
	if th.BalanceReference > 0 {
		msg += fmt.Sprintf(" (%.1f%% of reference)", ratio*100)
	}

	return model.Breach{
		Class:     model.BalanceLow,
		Current:   balance,
		Threshold: floor,
		Message:   msg,
	}, true
}

func evaluateRatio(class model.AlertClass, label string, remaining, limit int64, threshold float64) (model.Breach, bool) {
	if limit <= 0 {
		return model.Breach{}, false
	}
	ratio := model.Ratio(remaining, limit)
	if ratio >= threshold {
		return model.Breach{}, false
	}
	return model.Breach{
		Class:     class,
		Current:   ratio,
		Threshold: threshold,
		Message: fmt.Sprintf("%s remaining %s of %s (%.1f%%) is below %.1f%%",
			label, humanize.Comma(remaining), humanize.Comma(limit), ratio*100, threshold*100),
	}, true
}
