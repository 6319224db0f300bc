// Package convert implements the JSON -> CSV/XML/HTML format converters.
// There is no pack example wiring a third-party CSV or XML library for
// this concern (see DESIGN.md); XML uses the standard library's
// encoding/xml, and CSV quoting and delimiting are written by hand here.
package convert

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/nugget/eventgraph/internal/engine"
)

// Format selects the output encoding a ConverterProcessor produces.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
	FormatHTML Format = "html"
)

// ConverterProcessor turns event.Data (expected to be a
// map[string]any or []any of such maps, i.e. already-decoded JSON) into
// the configured output format and emits a file_converted event whose
// data is {content, format}.
type ConverterProcessor struct {
	format Format
	csv    resolvedCSVConfig
}

// CSVConfig controls the CSV converter's nested-field flattening and
// output formatting. Zero-value fields fall back to the defaults below.
type CSVConfig struct {
	Separator      string `yaml:"separator"`       // nested-field path separator, default "."
	Delimiter      string `yaml:"delimiter"`        // CSV field delimiter, default ","
	QuoteChar      string `yaml:"quote_char"`       // CSV quote character, default `"`
	IncludeHeaders *bool  `yaml:"include_headers"`  // default true
	OutputFormat   string `yaml:"output_format"`    // "string" or "array", default "string"
	SortHeaders    *bool  `yaml:"sort_headers"`     // default true
}

const (
	defaultCSVSeparator    = "."
	defaultCSVDelimiter    = ","
	defaultCSVQuoteChar    = `"`
	defaultCSVOutputFormat = "string"
)

type resolvedCSVConfig struct {
	separator      string
	delimiter      rune
	quoteChar      rune
	includeHeaders bool
	outputFormat   string
	sortHeaders    bool
}

func mergeCSVConfig(cfg CSVConfig) resolvedCSVConfig {
	separator := cfg.Separator
	if separator == "" {
		separator = defaultCSVSeparator
	}
	delimiter := cfg.Delimiter
	if delimiter == "" {
		delimiter = defaultCSVDelimiter
	}
	quoteChar := cfg.QuoteChar
	if quoteChar == "" {
		quoteChar = defaultCSVQuoteChar
	}
	outputFormat := cfg.OutputFormat
	if outputFormat == "" {
		outputFormat = defaultCSVOutputFormat
	}
	includeHeaders := true
	if cfg.IncludeHeaders != nil {
		includeHeaders = *cfg.IncludeHeaders
	}
	sortHeaders := true
	if cfg.SortHeaders != nil {
		sortHeaders = *cfg.SortHeaders
	}

	return resolvedCSVConfig{
		separator:      separator,
		delimiter:      []rune(delimiter)[0],
		quoteChar:      []rune(quoteChar)[0],
		includeHeaders: includeHeaders,
		outputFormat:   outputFormat,
		sortHeaders:    sortHeaders,
	}
}

// New returns a ConverterProcessor for the given output format. csvConfig
// is only consulted when format is FormatCSV.
func New(format Format, csvConfig CSVConfig) *ConverterProcessor {
	return &ConverterProcessor{format: format, csv: mergeCSVConfig(csvConfig)}
}

func (c *ConverterProcessor) CanHandle(*engine.Event) bool { return true }

func (c *ConverterProcessor) Process(_ context.Context, event *engine.Event, _ *engine.Context) (*engine.Event, error) {
	var (
		out any
		err error
	)

	switch c.format {
	case FormatCSV:
		out, err = csvConvert(event.Data, c.csv)
	case FormatXML:
		out, err = ToXML(event.Data)
	case FormatHTML:
		out, err = ToHTML(event.Data)
	default:
		return nil, fmt.Errorf("convert: unknown format %q", c.format)
	}
	if err != nil {
		return nil, err
	}

	return engine.NewEvent(engine.EventFileConverted, map[string]any{
		"content": out,
		"format":  string(c.format),
	}), nil
}

// ToCSV renders rows as CSV text using the default configuration:
// dot-separated nested-field headers, comma delimiter, double-quote
// quoting, sorted headers, a header row included. Nested objects are
// flattened into dotted-path columns and array values are joined with
// "; ", matching the converted-to-CSV behavior of the source engine's
// recursive header/value extraction.
func ToCSV(data any) (string, error) {
	out, err := csvConvert(data, mergeCSVConfig(CSVConfig{}))
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// csvConvert implements the configurable CSV conversion: header
// discovery via recursive dotted-path flattening (csvHeaderPaths),
// value extraction per header (csvDeepValue), then either a CSV string
// or (output_format: "array") a [][]string of header row plus data
// rows.
func csvConvert(data any, cfg resolvedCSVConfig) (any, error) {
	items := csvItems(data)

	headers := csvHeaderPaths(data, cfg.separator)
	if cfg.sortHeaders {
		sort.Strings(headers)
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		row := make([]string, len(headers))
		for i, h := range headers {
			keys := strings.Split(h, cfg.separator)
			if v, ok := csvDeepValue(item, keys); ok {
				row[i] = stringify(v)
			}
		}
		rows = append(rows, row)
	}

	if cfg.outputFormat == "array" {
		if cfg.includeHeaders {
			return append([][]string{headers}, rows...), nil
		}
		return rows, nil
	}

	var b strings.Builder
	if cfg.includeHeaders {
		writeCSVRow(&b, headers, cfg.delimiter, cfg.quoteChar)
	}
	for _, row := range rows {
		writeCSVRow(&b, row, cfg.delimiter, cfg.quoteChar)
	}
	return b.String(), nil
}

// csvItems wraps data as a list of "rows" to flatten: an array is used
// as-is, anything else is treated as the single row.
func csvItems(data any) []any {
	if list, ok := data.([]any); ok {
		return list
	}
	return []any{data}
}

// csvHeaderPaths recursively walks data (an item or a list of items)
// and returns the union of dotted-path column names at every scalar
// leaf, mirroring the source engine's _get_csv_headers.
func csvHeaderPaths(data any, sep string) []string {
	seen := map[string]bool{}
	var order []string
	walkCSVHeaders(data, "", sep, seen, &order)
	return order
}

func walkCSVHeaders(data any, parentKey, sep string, seen map[string]bool, order *[]string) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			newKey := k
			if parentKey != "" {
				newKey = parentKey + sep + k
			}
			switch v[k].(type) {
			case map[string]any, []any:
				walkCSVHeaders(v[k], newKey, sep, seen, order)
			default:
				if !seen[newKey] {
					seen[newKey] = true
					*order = append(*order, newKey)
				}
			}
		}
	case []any:
		for _, item := range v {
			walkCSVHeaders(item, parentKey, sep, seen, order)
		}
	}
}

// csvDeepValue resolves keys against data, descending through nested
// maps. An array encountered along the path gathers every matching leaf
// across its items and joins them with "; ", mirroring the source
// engine's _get_deep_value.
func csvDeepValue(data any, keys []string) (any, bool) {
	if len(keys) == 0 {
		return data, true
	}

	switch v := data.(type) {
	case []any:
		var gathered []string
		for _, item := range v {
			if val, ok := csvDeepValue(item, keys); ok && val != nil {
				gathered = append(gathered, stringify(val))
			}
		}
		if len(gathered) == 0 {
			return nil, false
		}
		return strings.Join(gathered, "; "), true
	case map[string]any:
		val, ok := v[keys[0]]
		if !ok || val == nil {
			return nil, false
		}
		return csvDeepValue(val, keys[1:])
	default:
		return nil, false
	}
}

// writeCSVRow appends one CSV record to b using delimiter and quoteChar,
// quoting a field only when it contains the delimiter, the quote
// character, or a newline (quote-minimal, matching Python's csv module
// default).
func writeCSVRow(b *strings.Builder, fields []string, delimiter, quoteChar rune) {
	for i, f := range fields {
		if i > 0 {
			b.WriteRune(delimiter)
		}
		b.WriteString(quoteCSVField(f, delimiter, quoteChar))
	}
	b.WriteString("\r\n")
}

func quoteCSVField(f string, delimiter, quoteChar rune) string {
	if !strings.ContainsRune(f, delimiter) && !strings.ContainsRune(f, quoteChar) && !strings.ContainsAny(f, "\r\n") {
		return f
	}
	q := string(quoteChar)
	escaped := strings.ReplaceAll(f, q, q+q)
	return q + escaped + q
}

func asRows(data any) ([]map[string]any, error) {
	switch v := data.(type) {
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("array item is not an object (got %T)", item)
			}
			rows = append(rows, m)
		}
		return rows, nil
	case map[string]any:
		return []map[string]any{v}, nil
	default:
		return nil, fmt.Errorf("unsupported input shape %T (want object or array of objects)", data)
	}
}

func collectHeaders(rows []map[string]any) []string {
	seen := map[string]bool{}
	var headers []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)
	return headers
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// xmlNode mirrors a JSON-ish value as a generic XML element tree.
// encoding/xml has no native map support, so scalar-keyed maps are
// encoded by hand via xmlNode, matching the JSON->XML->parse
// round-trip property for scalar keys and values.
type xmlNode struct {
	XMLName  xml.Name
	Attr     []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
	Content  string     `xml:",chardata"`
}

// ToXML renders data (scalars, maps, and slices of either) as XML under
// a <root> element.
func ToXML(data any) (string, error) {
	root := buildXMLNode("root", data)
	out, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return "", fmt.Errorf("convert: to xml: %w", err)
	}
	return xml.Header + string(out), nil
}

func buildXMLNode(name string, v any) xmlNode {
	node := xmlNode{XMLName: xml.Name{Local: sanitizeTag(name)}}

	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			node.Children = append(node.Children, buildXMLNode(k, val[k]))
		}
	case []any:
		for _, item := range val {
			node.Children = append(node.Children, buildXMLNode("item", item))
		}
	case nil:
		// Empty element.
	default:
		node.Content = stringify(val)
	}

	return node
}

// sanitizeTag ensures a map key is a legal XML element name; invalid
// characters are replaced with "_".
func sanitizeTag(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	for i, r := range name {
		if isXMLNameStart(r) || (i > 0 && isXMLNameChar(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isXMLNameStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isXMLNameChar(r rune) bool {
	return isXMLNameStart(r) || (r >= '0' && r <= '9') || r == '-' || r == '.'
}

// ToHTML renders data as a minimal HTML table (rows) or definition list
// (a single object), suitable for embedding in an email body or simple
// dashboard.
func ToHTML(data any) (string, error) {
	switch v := data.(type) {
	case []any:
		rows, err := asRows(data)
		if err != nil {
			return "", fmt.Errorf("convert: to html: %w", err)
		}
		return renderHTMLTable(rows), nil
	case map[string]any:
		return renderHTMLObject(v), nil
	default:
		return fmt.Sprintf("<pre>%s</pre>", html.EscapeString(stringify(v))), nil
	}
}

func renderHTMLTable(rows []map[string]any) string {
	headers := collectHeaders(rows)

	var b strings.Builder
	b.WriteString("<table>\n  <thead><tr>")
	for _, h := range headers {
		b.WriteString("<th>" + html.EscapeString(h) + "</th>")
	}
	b.WriteString("</tr></thead>\n  <tbody>\n")
	for _, row := range rows {
		b.WriteString("    <tr>")
		for _, h := range headers {
			b.WriteString("<td>" + html.EscapeString(stringify(row[h])) + "</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("  </tbody>\n</table>")
	return b.String()
}

func renderHTMLObject(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<dl>\n")
	for _, k := range keys {
		b.WriteString("  <dt>" + html.EscapeString(k) + "</dt><dd>" + html.EscapeString(stringify(obj[k])) + "</dd>\n")
	}
	b.WriteString("</dl>")
	return b.String()
}
