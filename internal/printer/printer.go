// Package printer renders OData results for humans.
package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// timestampLayout is used for Edm.DateTimeOffset values.
const timestampLayout = "2006-01-02 15:04"

// Printer writes sections, lists and entities to an output stream.
// Headings are styled only when the output is a terminal.
type Printer struct {
	out     io.Writer
	heading lipgloss.Style
	label   lipgloss.Style
	loc     *time.Location
}

// New creates a Printer writing to out.
func New(out io.Writer) *Printer {
	p := &Printer{
		out:     out,
		heading: lipgloss.NewStyle(),
		label:   lipgloss.NewStyle(),
		loc:     time.Local,
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.heading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
		p.label = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}
	return p
}

// Section prints a section heading preceded by a blank line.
func (p *Printer) Section(title string) {
	fmt.Fprintf(p.out, "\n%s\n", p.heading.Render("----- "+title+" "+strings.Repeat("-", max(0, 40-len(title)))))
}

// Line prints a single formatted line.
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// List prints a title followed by indented items and a blank line.
func (p *Printer) List(title string, items []string) {
	fmt.Fprintln(p.out, p.label.Render(title))
	for _, item := range items {
		fmt.Fprintf(p.out, "    %s\n", item)
	}
	fmt.Fprintln(p.out)
}

// Entity prints a title and the entity's properties.
func (p *Printer) Entity(title string, props map[string]any) {
	fmt.Fprintf(p.out, "%s\n%s\n", p.label.Render(title), p.Format(props, 0))
}

// Format renders properties as "name: value" lines, sorted by name and
// indented two spaces per nesting level. There is no trailing newline.
func (p *Printer) Format(props map[string]any, level int) string {
	var b strings.Builder
	p.writeMap(&b, props, level)
	return strings.TrimSuffix(b.String(), "\n")
}

func (p *Printer) writeMap(b *strings.Builder, props map[string]any, level int) {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		indent(b, level)
		b.WriteString(name)
		b.WriteByte(':')
		p.writeValue(b, props[name], level)
	}
}

// writeValue continues the current line with a scalar or opens a nested block.
func (p *Printer) writeValue(b *strings.Builder, v any, level int) {
	switch val := v.(type) {
	case map[string]any:
		b.WriteByte('\n')
		p.writeMap(b, val, level+1)
	case []any:
		b.WriteByte('\n')
		for _, item := range val {
			indent(b, level+1)
			b.WriteByte('-')
			if nested, ok := item.(map[string]any); ok {
				b.WriteByte('\n')
				p.writeMap(b, nested, level+2)
				continue
			}
			p.writeValue(b, item, level+1)
		}
	default:
		b.WriteByte(' ')
		b.WriteString(p.scalar(val))
		b.WriteByte('\n')
	}
}

func (p *Printer) scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.In(p.loc).Format(timestampLayout)
		}
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func indent(b *strings.Builder, level int) {
	for range level {
		b.WriteString("  ")
	}
}
