package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

type reportStyles struct {
	title lipgloss.Style
	label lipgloss.Style
	value lipgloss.Style
	alert lipgloss.Style
	ok    lipgloss.Style
	muted lipgloss.Style
}

func newReportStyles(color bool) reportStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return reportStyles{plain, plain, plain, plain, plain, plain}
	}
	return reportStyles{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		label: lipgloss.NewStyle().Bold(true),
		value: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		alert: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		muted: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

func renderReport(v reportView, color bool) string {
	st := newReportStyles(color)
	s := v.Report.Summary

	var b strings.Builder
	b.WriteString(st.title.Render("Outage clusters") + "\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")

	stat := func(label string, value any) {
		fmt.Fprintf(&b, "  %s %s\n", st.label.Render(label+":"), st.value.Render(fmt.Sprint(value)))
	}
	stat("Source", v.Source)
	stat("Strategy", v.Strategy)
	stat("Radius", fmt.Sprintf("%.0f m", v.Params.RadiusMeters))
	stat("Threshold", fmt.Sprintf("%.0f%% offline", v.Params.ThresholdRatio*100))
	stat("Routers", fmt.Sprintf("%d (%d offline)", s.Nodes, s.OfflineNodes))
	stat("Ratio mean/median/p90", fmt.Sprintf("%.2f / %.2f / %.2f", s.MeanRatio, s.MedianRatio, s.P90Ratio))
	stat("Took", v.Took)
	b.WriteString("\n")

	if len(v.Report.Zones) == 0 {
		b.WriteString(st.ok.Render("No affected zones") + "\n")
		return b.String()
	}
	b.WriteString(st.alert.Render(fmt.Sprintf("%d affected zones", len(v.Report.Zones))) + "\n")

	zones := v.Report.Zones
	if v.Limit > 0 && len(zones) > v.Limit {
		zones = zones[:v.Limit]
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "Router", "Provider", "Location", "Offline", "Ratio")
	for _, z := range zones {
		id := z.NodeID
		if id == "" {
			id = fmt.Sprintf("node %d", z.NodeIndex)
		}
		t.Row(
			fmt.Sprint(z.NodeIndex),
			id,
			z.Provider,
			z.Location.String(),
			fmt.Sprintf("%d/%d", z.Offline, z.Neighbors),
			fmt.Sprintf("%.2f", z.OfflineRatio),
		)
	}
	b.WriteString(t.Render() + "\n")

	if hidden := len(v.Report.Zones) - len(zones); hidden > 0 {
		b.WriteString(st.muted.Render(fmt.Sprintf("... %d more (use --limit to see more)", hidden)) + "\n")
	}
	return b.String()
}
