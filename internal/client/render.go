package client

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhdewitt/telemon/internal/protocol"
)

const DefaultTopProcesses = 10

// Frame is everything one screen of the monitor shows.
type Frame struct {
	Server   string
	Status   string
	Err      string
	Snapshot *protocol.Snapshot
	Totals   *protocol.StaticTotals
	Top      int
	Width    int
}

func (f Frame) Render() string {
	title := "telemon"
	if f.Snapshot != nil && f.Snapshot.Hostname != "" {
		title += " · " + f.Snapshot.Hostname
	}

	status := f.Server
	if f.Status != "" {
		status += "  " + f.Status
	}

	sections := []string{
		TitleStyle.Render(title),
		StatusStyle.Render(status),
	}
	if f.Err != "" {
		sections = append(sections, ErrorStyle.Render(f.Err))
	}

	if f.Snapshot == nil {
		sections = append(sections, "", WarningStyle.Render("waiting for first update..."))
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	bar := f.barWidth()
	sections = append(sections,
		"",
		renderCPU(f.Snapshot, bar),
		"",
		renderMemory(f.Snapshot.Memory, f.Totals, bar),
		"",
		renderDisk(f.Snapshot.Disk, f.Totals, bar),
		"",
		renderProcesses(f.Snapshot.Processes, f.Top),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (f Frame) barWidth() int {
	if f.Width <= 0 {
		return defaultBarWidth
	}
	return max(10, min(50, f.Width-30))
}

func renderCPU(s *protocol.Snapshot, bar int) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("CPU"))

	for i, pct := range s.CPUPerCore {
		fmt.Fprintf(&b, "\n%s %s %s",
			LabelStyle.Render(fmt.Sprintf("core %-3d", i)),
			RenderProgressBar(pct, bar),
			ValueStyle.Render(fmt.Sprintf("%5.1f%%", pct)))
	}
	if len(s.CPUPerCore) == 0 {
		b.WriteString("\n" + StatusStyle.Render("no cores reported"))
	}
	if s.CPUAverage != nil {
		fmt.Fprintf(&b, "\n%s %s %s",
			LabelStyle.Render("average "),
			RenderProgressBar(*s.CPUAverage, bar),
			ValueStyle.Render(fmt.Sprintf("%5.1f%%", *s.CPUAverage)))
	}
	return b.String()
}

func renderMemory(m protocol.MemoryStats, totals *protocol.StaticTotals, bar int) string {
	total := m.Used + m.Available
	if totals != nil && totals.TotalMemory > 0 {
		total = totals.TotalMemory
	}

	return fmt.Sprintf("%s\n%s %s %s\n%s %s",
		HeaderStyle.Render("Memory"),
		LabelStyle.Render("used    "),
		RenderProgressBar(m.Percent, bar),
		ValueStyle.Render(fmt.Sprintf("%5.1f%%", m.Percent)),
		LabelStyle.Render("        "),
		ValueStyle.Render(fmt.Sprintf("%s used / %s total, %s available",
			formatBytes(m.Used), formatBytes(total), formatBytes(m.Available))))
}

func renderDisk(d protocol.DiskStats, totals *protocol.StaticTotals, bar int) string {
	total := d.Used + d.Free
	if totals != nil && totals.TotalDisk > 0 {
		total = totals.TotalDisk
	}

	return fmt.Sprintf("%s\n%s %s %s\n%s %s\n%s %s",
		HeaderStyle.Render("Disk"),
		LabelStyle.Render("used    "),
		RenderProgressBar(d.Percent, bar),
		ValueStyle.Render(fmt.Sprintf("%5.1f%%", d.Percent)),
		LabelStyle.Render("        "),
		ValueStyle.Render(fmt.Sprintf("%s used / %s total, %s free",
			formatBytes(d.Used), formatBytes(total), formatBytes(d.Free))),
		LabelStyle.Render("io      "),
		ValueStyle.Render(fmt.Sprintf("%d reads, %d writes", d.ReadCount, d.WriteCount)))
}

func renderProcesses(procs []protocol.ProcessInfo, top int) string {
	if top <= 0 {
		top = DefaultTopProcesses
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", HeaderStyle.Render(fmt.Sprintf("Processes (%d)", len(procs))))
	b.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-8s %-24s %7s %7s", "PID", "NAME", "CPU%", "MEM%")))

	for _, p := range topProcesses(procs, top) {
		name := p.Name
		if r := []rune(name); len(r) > 24 {
			name = string(r[:23]) + "…"
		}
		fmt.Fprintf(&b, "\n%-8d %-24s %7s %7s", p.Pid, name, optPercent(p.CPUPercent), optPercent(p.MemoryPercent))
	}
	return b.String()
}

func optPercent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
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
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
