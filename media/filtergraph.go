package media

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type argKind int

const (
	rawArg argKind = iota
	exprArg
	textArg
)

type filterArg struct {
	key   string
	value string
	kind  argKind
}

// Window is a time range a filter is enabled for
type Window struct {
	Start float64
	End   float64
}

// Between enables the filter for Start <= t <= End
func (w Window) Between() string {
	return fmt.Sprintf("between(t,%s,%s)", Seconds(w.Start), Seconds(w.End))
}

// Filter is a single ffmpeg filter with ordered named options
type Filter struct {
	name   string
	args   []filterArg
	group  string
	window *Window
}

func NewFilter(name string) *Filter {
	return &Filter{name: name}
}

// Set adds an option whose value is written verbatim
func (f *Filter) Set(key, value string) *Filter {
	f.args = append(f.args, filterArg{key: key, value: value, kind: rawArg})
	return f
}

func (f *Filter) Setf(key, format string, a ...any) *Filter {
	return f.Set(key, fmt.Sprintf(format, a...))
}

// Expr adds an expression option, quoted so commas survive graph parsing
func (f *Filter) Expr(key, expr string) *Filter {
	f.args = append(f.args, filterArg{key: key, value: expr, kind: exprArg})
	return f
}

// Text adds a free-text option. The value is escaped for both the option
// parser and the graph parser, so any user string is safe here.
func (f *Filter) Text(key, text string) *Filter {
	f.args = append(f.args, filterArg{key: key, value: text, kind: textArg})
	return f
}

// Enable limits the filter to a window. Windows sharing a group must not overlap.
func (f *Filter) Enable(group string, w Window) *Filter {
	f.group = group
	f.window = &w
	return f.Expr("enable", w.Between())
}

// EnableAfter limits the filter to t > start
func (f *Filter) EnableAfter(start float64) *Filter {
	return f.Expr("enable", fmt.Sprintf("gt(t,%s)", Seconds(start)))
}

func (f *Filter) String() string {
	if len(f.args) == 0 {
		return f.name
	}
	parts := make([]string, 0, len(f.args))
	for _, a := range f.args {
		switch a.kind {
		case exprArg:
			parts = append(parts, a.key+"='"+a.value+"'")
		case textArg:
			parts = append(parts, a.key+"="+EscapeText(a.value))
		default:
			parts = append(parts, a.key+"="+a.value)
		}
	}
	return f.name + "=" + strings.Join(parts, ":")
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// EscapeText escapes a literal string for use as a filter option value
// inside a filtergraph. Pair drawtext with expansion=none so % stays literal.
func EscapeText(s string) string {
	return graphEscaper.Replace(optionEscaper.Replace(s))
}

type link struct {
	in      []string
	filters []*Filter
	out     string
}

// Graph builds a -filter_complex / -vf string. Labels are checked by Validate.
type Graph struct {
	links    []link
	duration float64
}

func NewGraph() *Graph {
	return &Graph{}
}

// Chain appends filters reading from in and writing to out. An empty out
// leaves the chain unlabelled, which is what a single -vf chain wants.
func (g *Graph) Chain(in []string, out string, filters ...*Filter) *Graph {
	g.links = append(g.links, link{in: in, filters: filters, out: out})
	return g
}

// Within bounds every enable window to [0, d]
func (g *Graph) Within(d float64) *Graph {
	g.duration = d
	return g
}

func (g *Graph) String() string {
	parts := make([]string, 0, len(g.links))
	for _, l := range g.links {
		var b strings.Builder
		for _, in := range l.in {
			b.WriteString("[" + in + "]")
		}
		fs := make([]string, 0, len(l.filters))
		for _, f := range l.filters {
			fs = append(fs, f.String())
		}
		b.WriteString(strings.Join(fs, ","))
		if l.out != "" {
			b.WriteString("[" + l.out + "]")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ";")
}

var streamSpec = regexp.MustCompile(`^\d+:[vas](:\d+)?$`)

const windowEpsilon = 1e-6

// Validate checks that labels are produced before use, consumed at most
// once, and that enable windows are well-formed and do not overlap.
func (g *Graph) Validate() error {
	if len(g.links) == 0 {
		return fmt.Errorf("filtergraph: empty")
	}
	produced := make(map[string]bool)
	consumed := make(map[string]bool)
	for i, l := range g.links {
		if len(l.filters) == 0 {
			return fmt.Errorf("filtergraph: chain %d has no filters", i)
		}
		for _, in := range l.in {
			if streamSpec.MatchString(in) {
				continue
			}
			if !produced[in] {
				return fmt.Errorf("filtergraph: label [%s] used before it is produced", in)
			}
			if consumed[in] {
				return fmt.Errorf("filtergraph: label [%s] consumed twice", in)
			}
			consumed[in] = true
		}
		if l.out != "" {
			if produced[l.out] {
				return fmt.Errorf("filtergraph: label [%s] produced twice", l.out)
			}
			produced[l.out] = true
		}
	}
	return g.validateWindows()
}

func (g *Graph) validateWindows() error {
	groups := make(map[string][]Window)
	for _, l := range g.links {
		for _, f := range l.filters {
			if f.window == nil {
				continue
			}
			w := *f.window
			if w.Start < 0 || w.End <= w.Start {
				return fmt.Errorf("filtergraph: invalid window [%s, %s]", Seconds(w.Start), Seconds(w.End))
			}
			if g.duration > 0 && w.End > g.duration+windowEpsilon {
				return fmt.Errorf("filtergraph: window [%s, %s] ends after %s", Seconds(w.Start), Seconds(w.End), Seconds(g.duration))
			}
			groups[f.group] = append(groups[f.group], w)
		}
	}
	for group, ws := range groups {
		sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })
		for i := 1; i < len(ws); i++ {
			if ws[i].Start < ws[i-1].End-windowEpsilon {
				return fmt.Errorf("filtergraph: %s windows overlap at %s", group, Seconds(ws[i].Start))
			}
		}
	}
	return nil
}
