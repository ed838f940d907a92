package filtergraph

import "strings"

// Serialize renders the program as a filter_complex description.
func (p *Program) Serialize() string {
	parts := make([]string, 0, len(p.Chains))
	for _, c := range p.Chains {
		parts = append(parts, serializeChain(c))
	}
	return strings.Join(parts, ";")
}

func serializeChain(c Chain) string {
	var sb strings.Builder
	for _, in := range c.Inputs {
		writeLabel(&sb, in)
	}
	for i, f := range c.Filters {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeFilter(&sb, f)
	}
	for _, out := range c.Outputs {
		writeLabel(&sb, out)
	}
	return sb.String()
}

func writeLabel(sb *strings.Builder, l Label) {
	sb.WriteByte('[')
	sb.WriteString(string(l))
	sb.WriteByte(']')
}

func writeFilter(sb *strings.Builder, f Filter) {
	sb.WriteString(f.Name)
	for i, o := range f.Options {
		if i == 0 {
			sb.WriteByte('=')
		} else {
			sb.WriteByte(':')
		}
		sb.WriteString(o.Key)
		sb.WriteByte('=')
		sb.WriteString(QuoteValue(o.Value))
	}
}

// EscapeOption applies option-level escaping: backslash, single quote and
// colon are prefixed with a backslash.
func EscapeOption(v string) string {
	return optionEscaper.Replace(v)
}

var optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)

var graphEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)

// QuoteValue escapes v for both the option parser and the graph parser.
// Values free of graph-level specials pass through, values without quotes
// are wrapped in single quotes, anything else is backslash-escaped.
func QuoteValue(v string) string {
	escaped := EscapeOption(v)
	if !strings.ContainsAny(escaped, "\\'[],; \t") {
		return escaped
	}
	if !strings.Contains(escaped, "'") {
		return "'" + escaped + "'"
	}
	return graphEscaper.Replace(escaped)
}
