package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/wizard"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// item is one row of a selection list.
type item struct {
	key   string
	title string
	desc  string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title }

// itemDelegate renders one line per item, truncating the description to the
// list width.
type itemDelegate struct{}

func (itemDelegate) Height() int                             { return 1 }
func (itemDelegate) Spacing() int                            { return 0 }
func (itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (itemDelegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	it, ok := li.(item)
	if !ok {
		return
	}
	line := fmt.Sprintf("%d. %s", index+1, it.title)
	style := itemNormal
	if index == m.Index() {
		line = "> " + line
		style = itemSelected
	}
	out := style.Render(line)
	if it.desc != "" {
		room := m.Width() - runewidth.StringWidth(line) - 6
		if room > 8 {
			out += "  " + itemDesc.Render(truncate(it.desc, room))
		}
	}
	_, _ = io.WriteString(w, out)
}

// truncate shortens s to width display cells, marking the cut with "…".
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func newList(title string, items []list.Item) list.Model {
	l := list.New(items, itemDelegate{}, 72, 12)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.Styles.Title = panelTitle
	return l
}

func serverItems(servers []protocol.ServerInfo) []list.Item {
	items := make([]list.Item, 0, len(servers))
	for _, s := range servers {
		desc := fmt.Sprintf("%s · %s", s.Scope, s.Type)
		if s.Command != "" {
			desc += " · " + s.Command
		} else if s.URL != "" {
			desc += " · " + s.URL
		}
		items = append(items, item{key: s.ID, title: s.Name, desc: desc})
	}
	return items
}

func toolItems(tools []workflow.Tool) []list.Item {
	items := make([]list.Item, 0, len(tools))
	for _, t := range tools {
		items = append(items, item{key: t.Name, title: t.Name, desc: t.Description})
	}
	return items
}

func modeItems(manual, auto string) []list.Item {
	return []list.Item{
		item{key: string(wizard.ModeManual), title: manual},
		item{key: string(wizard.ModeAuto), title: auto},
	}
}

// selectKey moves the cursor to the item with key, if present.
func selectKey(l *list.Model, key string) {
	for i, li := range l.Items() {
		if it, ok := li.(item); ok && it.key == key {
			l.Select(i)
			return
		}
	}
}

func selectedKey(l list.Model) (string, bool) {
	it, ok := l.SelectedItem().(item)
	if !ok {
		return "", false
	}
	return it.key, true
}
