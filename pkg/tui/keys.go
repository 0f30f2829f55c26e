package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/wfstudio/pkg/wizard"
)

type keyMap struct {
	Next     key.Binding
	Back     key.Binding
	Focus    key.Binding
	FocusRev key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Next: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "next"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Focus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next field"),
	),
	FocusRev: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "previous field"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "cancel"),
	),
}

func matchKey(msg tea.KeyMsg, binding key.Binding) bool {
	return key.Matches(msg, binding)
}

// keyBarText renders the hints for the current step.
func keyBarText(step wizard.Step, last bool) string {
	next := "next"
	if last {
		next = "finish"
	}
	hints := keyStyle.Render("enter") + keyDescStyle.Render(":"+next) + "  "
	switch step {
	case wizard.StepServerSelection, wizard.StepToolSelectionMethod, wizard.StepToolSelection, wizard.StepParameterConfigMethod:
		hints += keyStyle.Render("↑↓") + keyDescStyle.Render(":select") + "  "
	case wizard.StepParameterDetailedConfig:
		hints += keyStyle.Render("tab") + keyDescStyle.Render(":field") + "  "
	}
	if step != wizard.StepServerSelection {
		hints += keyStyle.Render("esc") + keyDescStyle.Render(":back") + "  "
	}
	return hints + keyStyle.Render("ctrl+c") + keyDescStyle.Render(":cancel")
}
