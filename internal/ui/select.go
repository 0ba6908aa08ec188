package ui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// Select shows a cursor-driven picker and returns the index of the chosen item.
func Select(prompt string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, fmt.Errorf("nothing to select")
	}

	m := selectModel{
		prompt: prompt,
		items:  items,
	}

	// Use Stderr to avoid polluting stdout
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return -1, err
	}

	if m, ok := finalModel.(selectModel); ok && m.complete {
		return m.cursor, nil
	}
	return -1, fmt.Errorf("cancelled")
}

type selectModel struct {
	prompt   string
	items    []string
	cursor   int
	complete bool
	quitting bool
}

func (m selectModel) Init() tea.Cmd {
	return nil
}

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "enter":
			m.complete = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m selectModel) View() string {
	if m.complete {
		return ""
	}
	if m.quitting {
		return quitTextStyle.Render("Cancelled.")
	}

	s := "\n" + titleStyle.Render(m.prompt) + "\n\n"
	for i, item := range m.items {
		if i == m.cursor {
			s += selectedStyle.Render("> "+item) + "\n"
		} else {
			s += itemStyle.Render(item) + "\n"
		}
	}
	return s + "\n"
}
