package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/leveller/internal/preset"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFA500")).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00")).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAAA")).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Italic(true)
)

// StyledHelpPrinter creates a custom help printer with Lipgloss styling.
// The preset catalog is listed after the flags.
func StyledHelpPrinter(options kong.HelpOptions) func(options kong.HelpOptions, ctx *kong.Context) error {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		// Title and description
		sb.WriteString(helpTitleStyle.Render("Leveller 🎚"))
		sb.WriteString("\n")
		sb.WriteString(helpDescStyle.Render("Two-pass loudness normalisation with FFmpeg"))
		sb.WriteString("\n")

		// Usage
		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		sb.WriteString(fmt.Sprintf("%s [flags] <input> <output>", ctx.Model.Name))
		sb.WriteString("\n  ")
		sb.WriteString(fmt.Sprintf("%s --batch [flags] <input-dir> <output-dir>", ctx.Model.Name))
		sb.WriteString("\n")

		if args := positionals(ctx); len(args) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Arguments:"))
			sb.WriteString("\n")
			writeRows(&sb, args, helpArgStyle)
		}

		for _, g := range flagGroups(ctx) {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render(g.title + ":"))
			sb.WriteString("\n")
			writeRows(&sb, g.rows, helpFlagStyle)
		}

		// Presets section
		sb.WriteString("\n")
		sb.WriteString(helpSectionStyle.Render("Presets:"))
		sb.WriteString("\n")
		for _, p := range preset.All() {
			sb.WriteString("  ")
			sb.WriteString(helpArgStyle.Render(fmt.Sprintf("%-10s", p.Name)))
			sb.WriteString("  ")
			sb.WriteString(p.Description)
			sb.WriteString(" ")
			sb.WriteString(helpDefaultStyle.Render(fmt.Sprintf("(%.0f LUFS, %.1f dBTP)", p.TargetLUFS, p.TargetPeak)))
			sb.WriteString("\n")
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

// helpRow is one line of the arguments or flags listing.
type helpRow struct {
	label      string
	help       string
	defaultVal string
}

type flagGroup struct {
	title string
	rows  []helpRow
}

// writeRows prints rows with their help text aligned to the widest label.
func writeRows(sb *strings.Builder, rows []helpRow, labelStyle lipgloss.Style) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r.label))
	}
	for _, r := range rows {
		sb.WriteString("  ")
		sb.WriteString(labelStyle.Render(r.label))
		if r.help != "" {
			sb.WriteString(strings.Repeat(" ", width-len(r.label)+2))
			sb.WriteString(r.help)
		}
		if r.defaultVal != "" {
			sb.WriteString(" ")
			sb.WriteString(helpDefaultStyle.Render("(default: " + r.defaultVal + ")"))
		}
		sb.WriteString("\n")
	}
}

func positionals(ctx *kong.Context) []helpRow {
	var rows []helpRow
	for _, arg := range ctx.Model.Node.Positional {
		rows = append(rows, helpRow{label: arg.Summary(), help: arg.Help})
	}
	return rows
}

// flagGroups buckets the visible flags by their group tag, in the order
// groups first appear. Ungrouped flags, help included, come first.
func flagGroups(ctx *kong.Context) []flagGroup {
	groups := []flagGroup{{
		title: "Flags",
		rows:  []helpRow{{label: "-h, --help", help: "Show context-sensitive help."}},
	}}
	index := map[string]int{"": 0}

	for _, f := range ctx.Model.Node.Flags {
		if f.Name == "help" || f.Hidden {
			continue
		}
		key, title := "", ""
		if f.Group != nil {
			key, title = f.Group.Key, f.Group.Title
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, flagGroup{title: title})
		}
		groups[i].rows = append(groups[i].rows, helpRow{
			label:      flagLabel(f),
			help:       f.Help,
			defaultVal: f.Default,
		})
	}
	return groups
}

// flagLabel renders "-p, --preset=NAME" style labels.
func flagLabel(f *kong.Flag) string {
	label := "--" + f.Name
	if f.Short != 0 {
		label = fmt.Sprintf("-%c, %s", f.Short, label)
	}
	if !f.IsBool() && f.PlaceHolder != "" {
		label += "=" + strings.ToUpper(f.PlaceHolder)
	}
	return label
}
