package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/draco-worker/decoder"
	"github.com/wippyai/draco-worker/internal/payload"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// attributeRow is one decoded attribute flattened for display.
type attributeRow struct {
	name         string
	components   int
	datatype     string
	vertices     int
	byteStride   int
	normalized   bool
	quantization string
	attr         *decoder.Attribute
}

func (r attributeRow) cells() []string {
	return []string{
		r.name,
		strconv.Itoa(r.components),
		r.datatype,
		strconv.Itoa(r.vertices),
		strconv.Itoa(r.byteStride),
		strconv.FormatBool(r.normalized),
		r.quantization,
	}
}

var attributeColumns = []string{"Name", "Comp", "Datatype", "Vertices", "Stride", "Norm", "Quantization"}

func attributeRows(result *decoder.Result) []attributeRow {
	names := make([]string, 0, len(result.AttributeData))
	for name := range result.AttributeData {
		names = append(names, name)
	}
	slices.Sort(names)

	rows := make([]attributeRow, 0, len(names))
	for _, name := range names {
		attr := result.AttributeData[name]
		d := attr.Data
		vertices := 0
		if d.ComponentsPerAttribute > 0 && attr.Array != nil {
			vertices = attr.Array.Len() / d.ComponentsPerAttribute
		}
		rows = append(rows, attributeRow{
			name:         name,
			components:   d.ComponentsPerAttribute,
			datatype:     d.ComponentDatatype.String(),
			vertices:     vertices,
			byteStride:   d.ByteStride,
			normalized:   d.Normalized,
			quantization: describeQuantization(d.Quantization),
			attr:         attr,
		})
	}
	return rows
}

func describeQuantization(q *decoder.Quantization) string {
	if q == nil {
		return "-"
	}
	if q.Kind == decoder.QuantizationOctahedral {
		return fmt.Sprintf("%s %d bits", q.Kind, q.Bits)
	}
	return fmt.Sprintf("%s %d bits min=%v range=%g", q.Kind, q.Bits, q.MinValues, q.Range)
}

// previewVertices formats the first n vertices of attr, dequantized when
// the attribute still carries quantized values.
func previewVertices(attr *decoder.Attribute, n int) []string {
	comps := attr.Data.ComponentsPerAttribute
	if comps <= 0 || attr.Array == nil {
		return nil
	}
	total := attr.Array.Len() / comps
	n = min(n, total)

	lines := make([]string, 0, n)
	for v := 0; v < n; v++ {
		values := make([]string, comps)
		for c := 0; c < comps; c++ {
			values[c] = strconv.FormatFloat(attr.Array.At(v*comps+c), 'g', 6, 64)
		}
		line := fmt.Sprintf("%d: (%s)", v, strings.Join(values, ", "))
		if q := attr.Data.Quantization; q != nil {
			line += " -> " + formatDequantized(q, attr, v*comps)
		}
		lines = append(lines, line)
	}
	return lines
}

func formatDequantized(q *decoder.Quantization, attr *decoder.Attribute, offset int) string {
	comps := attr.Data.ComponentsPerAttribute
	if q.Kind == decoder.QuantizationOctahedral {
		if comps < 2 {
			return "?"
		}
		v := q.OctDecode(uint32(attr.Array.At(offset)), uint32(attr.Array.At(offset+1)))
		return fmt.Sprintf("(%.4f, %.4f, %.4f)", v[0], v[1], v[2])
	}
	values := make([]string, comps)
	for c := 0; c < comps; c++ {
		values[c] = fmt.Sprintf("%.4f", q.Dequantize(c, uint32(attr.Array.At(offset+c))))
	}
	return "(" + strings.Join(values, ", ") + ")"
}

func style(s lipgloss.Style, text string, styled bool) string {
	if !styled {
		return text
	}
	return s.Render(text)
}

func renderSummary(path string, compression payload.Compression, result *decoder.Result, rows int, styled bool) string {
	var b strings.Builder

	b.WriteString(style(titleStyle, "Draco mesh", styled))
	b.WriteString(" ")
	b.WriteString(path)
	if compression != payload.CompressionNone {
		b.WriteString(" (" + compression.String() + ")")
	}
	b.WriteString("\n\n")

	idx := result.IndexArray
	indexType := "-"
	if idx.TypedArray != nil {
		indexType = idx.TypedArray.Datatype().String()
	}
	fmt.Fprintf(&b, "Triangles: %d\nIndices:   %d (%s)\n\n",
		idx.NumberOfIndices/3, idx.NumberOfIndices, style(typeStyle, indexType, styled))

	attrs := attributeRows(result)
	if len(attrs) == 0 {
		b.WriteString("No attributes requested.\n")
		return b.String()
	}
	for _, r := range attrs {
		fmt.Fprintf(&b, "%s  %d x %s, %d vertices, stride %d, quantization %s\n",
			style(nameStyle, r.name, styled),
			r.components,
			style(typeStyle, r.datatype, styled),
			r.vertices, r.byteStride, r.quantization)
		for _, line := range previewVertices(r.attr, rows) {
			b.WriteString("    " + line + "\n")
		}
	}
	return b.String()
}

func renderError(err error, styled bool) string {
	return style(errorStyle, "Error: "+err.Error(), styled)
}
