package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	accent  = lipgloss.Color("#0087AF")
	muted   = lipgloss.Color("#888888")
	success = lipgloss.Color("#00AA00")
	warning = lipgloss.Color("#FFA500")
	failure = lipgloss.Color("#A40000")
)

// renderProcessingView renders the main processing view
func renderProcessingView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	b.WriteString(renderFileQueue(m))
	b.WriteString("\n\n")

	b.WriteString(renderOverallProgress(m))

	return b.String()
}

// renderHeader renders the application header
func renderHeader(m Model) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(accent).
		Render("Hearmodel 👂 - Hearing Aid DSP Reference Model")

	subtitle := lipgloss.NewStyle().
		Foreground(muted).
		Italic(true).
		Render(fmt.Sprintf("Simulating %d file(s) at 24 kHz", m.TotalFiles))

	return title + "\n" + subtitle
}

// renderFileQueue renders the list of files with their status
func renderFileQueue(m Model) string {
	var b strings.Builder

	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file))
		b.WriteString("\n")
	}

	return b.String()
}

// renderFileEntry renders a single file entry in the queue
func renderFileEntry(file FileProgress) string {
	fileName := filepath.Base(file.InputPath)

	switch file.Status {
	case StatusComplete:
		icon := lipgloss.NewStyle().Foreground(success).Render("✓")
		return fmt.Sprintf(" %s %s → %s\n   %s", icon, fileName, filepath.Base(file.OutputPath), levelSummary(file))

	case StatusProcessing:
		icon := lipgloss.NewStyle().Foreground(warning).Render("⚙")
		return fmt.Sprintf(" %s %s → %s\n%s",
			icon, fileName, generateOutputName(fileName),
			renderFileDetails(file))

	case StatusError:
		icon := lipgloss.NewStyle().Foreground(failure).Render("✗")
		return fmt.Sprintf(" %s %s\n   Error: %v", icon, fileName, file.Error)

	default:
		icon := lipgloss.NewStyle().Foreground(muted).Render("○")
		return fmt.Sprintf(" %s %s\n   Queued...", icon, fileName)
	}
}

func levelSummary(file FileProgress) string {
	s := fmt.Sprintf("Input: %.1f dBFS | Output: %.1f dBFS | Δ %+.1f dB | %d blocks",
		file.InputLevel, file.OutputLevel, file.OutputLevel-file.InputLevel, file.Blocks)
	if file.Warnings > 0 {
		s += lipgloss.NewStyle().Foreground(warning).Render(fmt.Sprintf(" | %d warning(s)", file.Warnings))
	}
	return s
}

// renderFileDetails renders detailed progress for the active file
func renderFileDetails(file FileProgress) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Width(60)

	var content strings.Builder

	fmt.Fprintf(&content, "Block %d\n", file.Block)
	content.WriteString(renderProgressBar(file.Progress, 40))
	content.WriteString("\n\n")

	elapsed := file.ElapsedTime.Seconds()
	var remaining float64
	if file.Progress > 0 {
		remaining = (elapsed / file.Progress) - elapsed
	}
	fmt.Fprintf(&content, "⏱  Elapsed: %.1fs | Remaining: ~%.1fs\n", elapsed, remaining)
	fmt.Fprintf(&content, "📊 Output: %.1f dBFS | Peak: %.1f dBFS\n", file.CurrentLevel, file.PeakLevel)
	fmt.Fprintf(&content, "🎚  AGC: %+.1f dB | FBC ceiling: %s", file.AGCGainDB, formatCeiling(file.GainLimitDB))

	return box.Render(content.String())
}

func formatCeiling(db float64) string {
	if db >= 0 {
		return "open"
	}
	return fmt.Sprintf("%+.1f dB", db)
}

// renderProgressBar renders a progress bar
func renderProgressBar(progress float64, width int) string {
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))
	empty := width - filled

	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	percentage := int(progress * 100)

	return fmt.Sprintf("%s %d%%", bar, percentage)
}

// renderOverallProgress renders the overall progress footer
func renderOverallProgress(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(muted).
		Padding(0, 1).
		Width(60)

	var content string
	if m.CurrentIndex >= 0 && m.CurrentIndex < len(m.Files) {
		content = fmt.Sprintf("Processing file %d of %d (%d complete)",
			m.CurrentIndex+1, m.TotalFiles, m.CompletedFiles)
	} else {
		content = fmt.Sprintf("Overall Progress: %d/%d complete", m.CompletedFiles, m.TotalFiles)
	}

	return box.Render(content)
}

// renderCompletionSummary renders the final completion summary
func renderCompletionSummary(m Model) string {
	var b strings.Builder

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(success).
		Render("✨ Simulation Complete!")
	b.WriteString(header)
	b.WriteString("\n\n")

	for _, file := range m.Files {
		if file.Status == StatusComplete || file.Status == StatusError {
			b.WriteString(renderFileEntry(file))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 60))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%d of %d file(s) processed", m.CompletedFiles, m.TotalFiles)
	if m.FailedFiles > 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(failure).Render(fmt.Sprintf(", %d failed", m.FailedFiles)))
	}
	b.WriteString("\n")

	return b.String()
}

// generateOutputName generates the output filename from input
func generateOutputName(input string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	return base + "-processed.wav"
}
