package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/flowboard/pkg/canvas"
	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	fbio "github.com/matzehuels/flowboard/pkg/io"
	"github.com/matzehuels/flowboard/pkg/panel"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	panelStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(0, 1)
)

// nudgeStep is how far H/J/K/L move a node on the canvas.
const nudgeStep = 20

type editorMode int

const (
	modeBrowse editorMode = iota
	modePickKind
	modeConnect
	modeFields
	modeInput
)

// =============================================================================
// EditorModel - Interactive workflow editor
// =============================================================================

// EditorModel is the bubbletea model behind the edit command. It drives the
// same canvas controller and config panel the HTTP API uses.
type EditorModel struct {
	ctx    context.Context
	path   string
	store  *workflow.Store
	canvas *canvas.Controller
	panel  *panel.Panel
	cancel func()

	mode   editorMode
	cursor int // index into store.Nodes()
	kind   int // index into workflow.Kinds() while picking
	target int // index into store.Nodes() while connecting
	field  int // index into the panel's fields
	input  string

	dirty    bool
	confirm  bool // q pressed once with unsaved changes
	status   string
	isErr    bool
	Quitting bool
}

// NewEditorModel opens store for editing; path is where s saves.
func NewEditorModel(ctx context.Context, path string, store *workflow.Store) *EditorModel {
	m := &EditorModel{
		ctx:    ctx,
		path:   path,
		store:  store,
		canvas: canvas.New(store),
		panel:  panel.New(store),
	}
	m.cancel = store.Subscribe(func(e workflow.Event) {
		if e.Kind != workflow.EventSelectionChanged {
			m.dirty = true
		}
	})
	if nodes := store.Nodes(); len(nodes) > 0 {
		m.canvas.OnNodeClick(nodes[0].ID)
	}
	return m
}

func (m *EditorModel) Init() tea.Cmd {
	return nil
}

// Dirty reports unsaved changes.
func (m *EditorModel) Dirty() bool { return m.dirty }

func (m *EditorModel) selectedID() string {
	id, _ := m.store.Selected()
	return id
}

func (m *EditorModel) syncCursor() {
	nodes := m.store.Nodes()
	id := m.selectedID()
	for i, n := range nodes {
		if n.ID == id {
			m.cursor = i
			return
		}
	}
	m.cursor = min(m.cursor, max(len(nodes)-1, 0))
}

func (m *EditorModel) setStatus(format string, args ...any) {
	m.status, m.isErr = fmt.Sprintf(format, args...), false
}

func (m *EditorModel) setError(err error) {
	m.status, m.isErr = fberrors.UserMessage(err), true
}

func (m *EditorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if key.String() == "ctrl+c" {
		m.Quitting = true
		return m, tea.Quit
	}
	switch m.mode {
	case modePickKind:
		m.updatePickKind(key)
	case modeConnect:
		m.updateConnect(key)
	case modeFields:
		m.updateFields(key)
	case modeInput:
		m.updateInput(key)
	default:
		return m.updateBrowse(key)
	}
	return m, nil
}

func (m *EditorModel) updateBrowse(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	nodes := m.store.Nodes()
	if key.String() != "q" {
		m.confirm = false
	}
	switch key.String() {
	case "q":
		if m.dirty && !m.confirm {
			m.confirm = true
			m.setStatus("unsaved changes, press q again to quit or s to save")
			return m, nil
		}
		m.Quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.canvas.OnNodeClick(nodes[m.cursor].ID)
		}
	case "down", "j":
		if m.cursor < len(nodes)-1 {
			m.cursor++
			m.canvas.OnNodeClick(nodes[m.cursor].ID)
		}
	case "a":
		m.mode, m.kind = modePickKind, 0
	case "d", "delete":
		id := m.selectedID()
		if m.canvas.DeleteSelection() {
			m.syncCursor()
			if rest := m.store.Nodes(); len(rest) > 0 {
				m.canvas.OnNodeClick(rest[m.cursor].ID)
			}
			m.setStatus("deleted %s", id)
		}
	case "c":
		m.startConnect("")
	case "t":
		m.startConnect(workflow.HandleTrue)
	case "f":
		m.startConnect(workflow.HandleFalse)
	case "e", "enter", "tab":
		if _, ok := m.panel.View(); ok {
			m.mode, m.field = modeFields, 0
		}
	case "H":
		m.nudge(-nudgeStep, 0)
	case "L":
		m.nudge(nudgeStep, 0)
	case "K":
		m.nudge(0, -nudgeStep)
	case "J":
		m.nudge(0, nudgeStep)
	case "s":
		m.save()
	case "esc":
		m.canvas.OnPaneClick()
	}
	return m, nil
}

func (m *EditorModel) updatePickKind(key tea.KeyMsg) {
	kinds := workflow.Kinds()
	switch key.String() {
	case "esc":
		m.mode = modeBrowse
	case "up", "k":
		m.kind = max(m.kind-1, 0)
	case "down", "j":
		m.kind = min(m.kind+1, len(kinds)-1)
	case "enter":
		pos := workflow.Position{}
		if n, ok := m.store.Node(m.selectedID()); ok {
			pos = workflow.Position{X: n.Position.X, Y: n.Position.Y + 150}
		}
		id, err := m.canvas.AddNode(kinds[m.kind], pos)
		if err != nil {
			m.setError(err)
		} else {
			m.syncCursor()
			m.setStatus("added %s %s", kinds[m.kind], id)
		}
		m.mode = modeBrowse
	}
}

// startConnect begins drawing an edge from the selection. Branch-limited
// kinds need a handle, so plain c on a condition defaults to "true".
func (m *EditorModel) startConnect(handle string) {
	n, ok := m.store.Node(m.selectedID())
	if !ok {
		return
	}
	if t, _ := n.Type(); t.BranchLimited() && handle == "" {
		handle = workflow.HandleTrue
	}
	if err := m.canvas.OnConnectStart(n.ID, handle); err != nil {
		m.setError(err)
		return
	}
	m.mode, m.target = modeConnect, m.cursor
}

func (m *EditorModel) updateConnect(key tea.KeyMsg) {
	nodes := m.store.Nodes()
	switch key.String() {
	case "esc":
		m.canvas.Cancel()
		m.mode = modeBrowse
	case "up", "k":
		m.target = max(m.target-1, 0)
	case "down", "j":
		m.target = min(m.target+1, len(nodes)-1)
	case "t", "f":
		source, _, _ := m.canvas.Connecting()
		handle := workflow.HandleTrue
		if key.String() == "f" {
			handle = workflow.HandleFalse
		}
		if err := m.canvas.OnConnectStart(source, handle); err != nil {
			m.setError(err)
		}
	case "enter":
		source, handle, _ := m.canvas.Connecting()
		target := nodes[m.target].ID
		if id, ok := m.canvas.OnConnectEnd(target); ok {
			m.setStatus("connected %s %s %s (%s)", source+handleSuffix(handle), iconArrow, target, id)
		} else {
			m.status, m.isErr = fmt.Sprintf("%s cannot connect to %s", source, target), true
		}
		m.mode = modeBrowse
	}
}

func handleSuffix(h string) string {
	if h == "" {
		return ""
	}
	return "[" + h + "]"
}

func (m *EditorModel) updateFields(key tea.KeyMsg) {
	v, ok := m.panel.View()
	if !ok {
		m.mode = modeBrowse
		return
	}
	switch key.String() {
	case "esc", "q":
		m.mode = modeBrowse
	case "up", "k", "shift+tab":
		m.field = max(m.field-1, 0)
	case "down", "j", "tab":
		m.field = min(m.field+1, len(v.Fields)-1)
	case "enter", "e":
		fv := v.Fields[m.field]
		m.input = ""
		if fv.Set {
			m.input = panel.Format(fv.Field, fv.Value)
		}
		m.mode = modeInput
	}
}

func (m *EditorModel) updateInput(key tea.KeyMsg) {
	switch key.Type {
	case tea.KeyEsc:
		m.mode = modeFields
	case tea.KeyEnter:
		v, _ := m.panel.View()
		f := v.Fields[m.field]
		if err := m.panel.Set(f.Name, m.input); err != nil {
			m.setError(err)
			return
		}
		m.setStatus("set %s", f.Name)
		m.mode = modeFields
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(key.Runes)
	}
}

// nudge moves the selection through a complete drag gesture.
func (m *EditorModel) nudge(dx, dy float64) {
	n, ok := m.store.Node(m.selectedID())
	if !ok {
		return
	}
	to := workflow.Position{X: n.Position.X + dx, Y: n.Position.Y + dy}
	m.canvas.OnNodeDragStart(n.ID, n.Position)
	m.canvas.OnNodeDrag(to)
	m.canvas.OnNodeDragStop(to)
}

func (m *EditorModel) save() {
	if err := fbio.ExportFile(m.ctx, m.store, m.path); err != nil {
		m.setError(err)
		return
	}
	m.dirty, m.confirm = false, false
	m.setStatus("saved %s", m.path)
}

// Close detaches the model from the store.
func (m *EditorModel) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *EditorModel) View() string {
	var b strings.Builder

	title := "Flowboard " + StyleDim.Render(m.path)
	if m.dirty {
		title += StyleWarning.Render(" •")
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(m.help()))
	b.WriteString("\n\n")

	left := m.viewNodes()
	right := m.viewPanel()
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))
	b.WriteString("\n")

	if m.status != "" {
		if m.isErr {
			b.WriteString(styleIconError.Render(iconError) + " " + StyleError.Render(m.status))
		} else {
			b.WriteString(styleIconInfo.Render(iconInfo) + " " + m.status)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *EditorModel) help() string {
	switch m.mode {
	case modePickKind:
		return "↑/↓ type  ⏎ add  esc cancel"
	case modeConnect:
		return "↑/↓ target  t/f branch  ⏎ connect  esc cancel"
	case modeFields:
		return "↑/↓ field  ⏎ edit  esc back"
	case modeInput:
		return "type value  ⏎ commit  esc cancel"
	}
	return "↑/↓ select  a add  d delete  c connect  t/f branch  e edit  HJKL move  s save  q quit"
}

func (m *EditorModel) viewNodes() string {
	if m.mode == modePickKind {
		var b strings.Builder
		b.WriteString(styleHeader.Render("Add node"))
		b.WriteString("\n")
		for i, k := range workflow.Kinds() {
			t, _ := workflow.Lookup(k)
			line := "  " + t.Label
			if i == m.kind {
				line = listSelectedStyle.Render("▸ " + t.Label)
			}
			b.WriteString(line + "\n")
		}
		return b.String()
	}

	nodes := m.store.Nodes()
	if len(nodes) == 0 {
		return listDimStyle.Render("empty workflow, press a to add a node")
	}
	selected := m.selectedID()
	source, handle, connecting := m.canvas.Connecting()

	rows := make([][]string, len(nodes))
	for i, n := range nodes {
		marker := "  "
		switch {
		case connecting && i == m.target:
			marker = iconArrow + " "
		case n.ID == selected:
			marker = "▸ "
		}
		var outs []string
		for _, e := range m.store.Outgoing(n.ID) {
			outs = append(outs, handleSuffix(e.SourceHandle)+e.Target)
		}
		name := n.Data.String("name")
		if connecting && n.ID == source {
			name += " " + handleSuffix(handle)
		}
		rows[i] = []string{marker, n.ID, string(n.Kind), name, strings.Join(outs, " ")}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "ID", "Type", "Name", "Next").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			if row >= len(nodes) {
				return lipgloss.NewStyle()
			}
			n := nodes[row]
			switch {
			case connecting && row == m.target:
				return listSelectedStyle
			case n.ID == selected:
				return listSelectedStyle
			case col == 2:
				return lipgloss.NewStyle().Foreground(kindColor[n.Kind])
			}
			return listNormalStyle
		}).
		Render()
}

func (m *EditorModel) viewPanel() string {
	v, ok := m.panel.View()
	if !ok {
		return panelStyle.Render(listDimStyle.Render("nothing selected"))
	}
	var b strings.Builder
	b.WriteString(StyleTitle.Render(v.Label) + " " + StyleDim.Render(v.NodeID) + "\n")
	for i, f := range v.Fields {
		val := listDimStyle.Render("unset")
		if f.Set {
			val = StyleValue.Render(panel.Format(f.Field, f.Value))
		}
		if m.mode == modeInput && i == m.field {
			val = m.input + listSelectedStyle.Render("▏")
		}
		label := f.Label
		if f.Required {
			label += "*"
		}
		line := fmt.Sprintf("%-12s %s", label, val)
		if (m.mode == modeFields || m.mode == modeInput) && i == m.field {
			line = listSelectedStyle.Render("▸ ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	for _, k := range sortedKeys(v.Extra) {
		b.WriteString(listDimStyle.Render(fmt.Sprintf("  %-12s %v", k, v.Extra[k])) + "\n")
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func sortedKeys(d workflow.Data) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// =============================================================================
// edit
// =============================================================================

func (c *CLI) editCommand() *cobra.Command {
	var create bool

	cmd := &cobra.Command{
		Use:   "edit <file>",
		Short: "Edit a workflow in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st := workflow.New()
			err := fbio.ImportFile(ctx, st, args[0], fbio.ImportOptions{})
			if err != nil && !(create && fberrors.Is(err, fberrors.ErrCodeNotFound)) {
				return err
			}

			m := NewEditorModel(ctx, args[0], st)
			defer m.Close()
			if _, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("editor: %w", err)
			}
			if m.Dirty() {
				printWarning("%s has unsaved changes that were discarded", args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&create, "create", false, "start an empty workflow if the file does not exist")
	return cmd
}
