package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(primaryColor).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00")).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAAA")).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// Flag groups shown as separate help sections. Flags without a group are
// listed under "Flags".
var (
	SimulationGroup = kong.Group{Key: "sim", Title: "Simulation"}
	OutputGroup     = kong.Group{Key: "out", Title: "Output"}
)

// Groups returns the flag groups in display order, for kong.ExplicitGroups.
func Groups() []kong.Group {
	return []kong.Group{SimulationGroup, OutputGroup}
}

// examples shown at the end of the help text
var examples = []string{
	"hearmodel speech.wav",
	"hearmodel -p fitting.json --profile 2 -r results/ speech.wav",
	"hearmodel -f feedback.txt --report -o out.wav speech.wav",
}

type helpEntry struct {
	name       string
	help       string
	defaultVal string
}

type helpSection struct {
	title   string
	entries []helpEntry
}

// StyledHelpPrinter returns a kong help printer with Lipgloss styling
func StyledHelpPrinter(options kong.HelpOptions) kong.HelpPrinter {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		sb.WriteString(helpTitleStyle.Render(AppTitle))
		sb.WriteString("\n")
		sb.WriteString(helpDescStyle.Render("Bit-accurate hearing aid DSP reference model: WOLA filterbank, feedback canceller, noise reduction and 8-channel compressor"))
		sb.WriteString("\n")

		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		fmt.Fprintf(&sb, "%s [flags] <files> ...", ctx.Model.Name)
		sb.WriteString("\n")

		args := helpSection{title: "Arguments"}
		for _, arg := range ctx.Model.Node.Positional {
			args.entries = append(args.entries, helpEntry{name: arg.Summary(), help: arg.Help})
		}
		writeHelpSection(&sb, args, helpArgStyle)

		for _, section := range flagSections(ctx) {
			writeHelpSection(&sb, section, helpFlagStyle)
		}

		sb.WriteString("\n")
		sb.WriteString(helpSectionStyle.Render("Examples:"))
		sb.WriteString("\n")
		for _, ex := range examples {
			sb.WriteString("  ")
			sb.WriteString(helpDefaultStyle.Render(ex))
			sb.WriteString("\n")
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

func writeHelpSection(sb *strings.Builder, section helpSection, nameStyle lipgloss.Style) {
	if len(section.entries) == 0 {
		return
	}

	width := 0
	for _, e := range section.entries {
		width = max(width, len(e.name))
	}

	sb.WriteString("\n")
	sb.WriteString(helpSectionStyle.Render(section.title + ":"))
	sb.WriteString("\n")
	for _, e := range section.entries {
		sb.WriteString("  ")
		sb.WriteString(nameStyle.Render(fmt.Sprintf("%-*s", width, e.name)))
		if e.help != "" {
			sb.WriteString("  ")
			sb.WriteString(e.help)
		}
		if e.defaultVal != "" {
			sb.WriteString(" ")
			sb.WriteString(helpDefaultStyle.Render("(default: " + e.defaultVal + ")"))
		}
		sb.WriteString("\n")
	}
}

// flagSections splits the model's flags into the ungrouped section followed
// by one section per group, in Groups() order.
func flagSections(ctx *kong.Context) []helpSection {
	general := helpSection{
		title:   "Flags",
		entries: []helpEntry{{name: "-h, --help", help: "Show context-sensitive help."}},
	}
	grouped := make(map[string]*helpSection)
	for _, g := range Groups() {
		grouped[g.Key] = &helpSection{title: g.Title}
	}

	for _, f := range ctx.Model.Node.Flags {
		if f.Name == "help" || f.Hidden {
			continue
		}
		entry := helpEntry{name: flagName(f), help: f.Help, defaultVal: f.Default}

		if f.Group != nil {
			if s, ok := grouped[f.Group.Key]; ok {
				s.entries = append(s.entries, entry)
				continue
			}
		}
		general.entries = append(general.entries, entry)
	}

	sections := []helpSection{general}
	for _, g := range Groups() {
		sections = append(sections, *grouped[g.Key])
	}
	return sections
}

func flagName(f *kong.Flag) string {
	name := "--" + f.Name
	if f.Short != 0 {
		name = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
	}
	if !f.IsBool() {
		placeholder := f.PlaceHolder
		if placeholder == "" {
			placeholder = f.Name
		}
		name += "=" + strings.ToUpper(placeholder)
	}
	return name
}
