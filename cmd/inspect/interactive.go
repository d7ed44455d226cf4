package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/draco-worker/decoder"
	"github.com/wippyai/draco-worker/internal/payload"
	"github.com/wippyai/draco-worker/worker"
)

var selectedStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4"))

// previewLimit caps the vertices listed in the detail view.
const previewLimit = 256

type modelState int

const (
	stateAttributes modelState = iota
	stateVertices
)

type interactiveModel struct {
	ctx         context.Context
	w           *worker.Worker
	opts        options
	err         error
	result      *decoder.Result
	compression payload.Compression
	rows        []attributeRow
	attrs       table.Model
	vertices    table.Model
	current     *attributeRow
	state       modelState
	loading     bool
}

type decodedMsg struct {
	err         error
	result      *decoder.Result
	compression payload.Compression
}

func newInteractiveModel(ctx context.Context, w *worker.Worker, opts options) *interactiveModel {
	columns := make([]table.Column, len(attributeColumns))
	for i, title := range attributeColumns {
		columns[i] = table.Column{Title: title, Width: max(len(title), 8)}
	}
	columns[0].Width = 14
	columns[len(columns)-1].Width = 40

	styles := table.DefaultStyles()
	styles.Selected = selectedStyle

	attrs := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithStyles(styles),
	)
	vertices := table.New(
		table.WithFocused(true),
		table.WithHeight(16),
		table.WithStyles(styles),
	)

	return &interactiveModel{
		ctx:      ctx,
		w:        w,
		opts:     opts,
		attrs:    attrs,
		vertices: vertices,
		state:    stateAttributes,
		loading:  true,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.decode
}

func (m *interactiveModel) decode() tea.Msg {
	result, compression, err := decodeFile(m.ctx, m.w.Decode, m.opts.input, m.opts)
	return decodedMsg{err: err, result: result, compression: compression}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "r":
			if !m.loading {
				m.loading = true
				m.state = stateAttributes
				return m, m.decode
			}
			return m, nil

		case "enter":
			if m.state == stateAttributes && len(m.rows) > 0 {
				row := m.rows[m.attrs.Cursor()]
				m.current = &row
				m.showVertices(row)
				m.state = stateVertices
			}
			return m, nil

		case "esc":
			if m.state == stateVertices {
				m.state = stateAttributes
				m.current = nil
			}
			return m, nil
		}

	case decodedMsg:
		m.loading = false
		m.err = msg.err
		m.result = msg.result
		m.compression = msg.compression
		m.rows = nil
		if msg.err == nil {
			m.rows = attributeRows(msg.result)
		}
		tableRows := make([]table.Row, len(m.rows))
		for i, r := range m.rows {
			tableRows[i] = r.cells()
		}
		m.attrs.SetRows(tableRows)
		m.attrs.SetCursor(0)
		return m, nil
	}

	var cmd tea.Cmd
	if m.state == stateVertices {
		m.vertices, cmd = m.vertices.Update(msg)
	} else {
		m.attrs, cmd = m.attrs.Update(msg)
	}
	return m, cmd
}

func (m *interactiveModel) showVertices(row attributeRow) {
	lines := previewVertices(row.attr, previewLimit)
	rows := make([]table.Row, len(lines))
	for i, line := range lines {
		index, values, _ := strings.Cut(line, ": ")
		rows[i] = table.Row{index, values}
	}
	// Columns first so the new rows render against the right widths.
	m.vertices.SetRows(nil)
	m.vertices.SetColumns([]table.Column{
		{Title: "#", Width: 6},
		{Title: row.name, Width: 72},
	})
	m.vertices.SetRows(rows)
	m.vertices.SetCursor(0)
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Draco Inspector"))
	b.WriteString(" ")
	b.WriteString(m.opts.input)
	if m.compression != payload.CompressionNone {
		b.WriteString(" (" + m.compression.String() + ")")
	}
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString("Decoding...\n")
		return b.String()
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("r: retry • q: quit"))
		return b.String()
	}

	idx := m.result.IndexArray
	indexType := "-"
	if idx.TypedArray != nil {
		indexType = idx.TypedArray.Datatype().String()
	}
	fmt.Fprintf(&b, "%d triangles, %d indices (%s)\n\n",
		idx.NumberOfIndices/3, idx.NumberOfIndices, typeStyle.Render(indexType))

	switch m.state {
	case stateAttributes:
		if len(m.rows) == 0 {
			b.WriteString("No attributes requested. Pass -attr NAME=id.\n\n")
		} else {
			b.WriteString(m.attrs.View())
			b.WriteString("\n\n")
		}
		b.WriteString(helpStyle.Render("↑/↓: select • enter: vertices • r: decode again • q: quit"))

	case stateVertices:
		fmt.Fprintf(&b, "%s  %d x %s, quantization %s\n\n",
			nameStyle.Render(m.current.name),
			m.current.components,
			typeStyle.Render(m.current.datatype),
			m.current.quantization)
		b.WriteString(m.vertices.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("↑/↓: scroll • esc: back • q: quit"))
	}

	return b.String()
}

func runInteractive(ctx context.Context, w *worker.Worker, opts options) error {
	p := tea.NewProgram(newInteractiveModel(ctx, w, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err == tea.ErrProgramKilled && ctx.Err() != nil {
		return nil
	}
	return err
}
