// Package cli holds the styled terminal output shared by the hearmodel
// command: help, version and error lines.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// AppTitle is the name shown in headers.
const AppTitle = "Hearmodel 👂"

// Color palette
var (
	primaryColor = lipgloss.Color("#0087AF")
	mutedColor   = lipgloss.Color("#888888")
	textColor    = lipgloss.Color("#FFFFFF")
	errorColor   = lipgloss.Color("#A40000")
	warnColor    = lipgloss.Color("#FFA500")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	WarningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(warnColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)
)

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render(AppTitle))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintWarning prints a non-fatal problem, such as a parameter fix.
func PrintWarning(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningStyle.Render("Warning:"), message)
}

// PrintKeyValue writes one aligned "key: value" line.
func PrintKeyValue(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "%s %v\n", KeyStyle.Render(fmt.Sprintf("%-10s", key+":")), value)
}
