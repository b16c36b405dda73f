// Command orcdash is the terminal dashboard for `monitor dashboard`: a
// read-only, auto-refreshing table over internal/server's HTTP API,
// styled with the bubbletea/bubbles/lipgloss stack the way
// zjrosen-perles's internal/ui packages build their panes. It never
// talks to tmux or the Supervisor directly — every value it renders
// came from a GET against the dashboard server, keeping the read-only
// boundary at the process level, not just the package level.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollInterval = 2 * time.Second

var (
	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	styleFooter = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	stylePaused = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	styleError  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

var stateColors = map[string]string{
	"Starting":     "245",
	"Ready":        "39",
	"Busy":         "87",
	"Idle":         "220",
	"Unresponsive": "208",
	"Crashed":      "196",
	"Gone":         "240",
	"Unknown":      "240",
}

// agentView mirrors internal/server.AgentView's JSON shape without
// importing the server package, keeping orcdash decoupled from the
// daemon's internals — it only ever speaks HTTP.
type agentView struct {
	Target           string    `json:"target"`
	Session          string    `json:"session"`
	Role             string    `json:"role"`
	State            string    `json:"state"`
	LastSeenChangeAt time.Time `json:"last_seen_change_at"`
	Activity         struct {
		LastActivity string `json:"last_activity"`
		CurrentTask  string `json:"current_task,omitempty"`
	} `json:"activity"`
}

type dashboardState struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Paused      bool        `json:"paused"`
	Agents      []agentView `json:"agents"`
}

type stateMsg struct {
	state dashboardState
	err   error
}

type model struct {
	client *http.Client
	url    string
	table  table.Model
	state  dashboardState
	err    error
	width  int
	height int
}

func newModel(addr string) model {
	columns := []table.Column{
		{Title: "Target", Width: 16},
		{Title: "Role", Width: 14},
		{Title: "State", Width: 13},
		{Title: "Last Activity", Width: 22},
		{Title: "Current Task", Width: 40},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(15))
	t.SetStyles(table.Styles{
		Header: lipgloss.NewStyle().Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Padding(0, 1),
		Cell:   lipgloss.NewStyle().Padding(0, 1),
	})
	return model{
		client: &http.Client{Timeout: 3 * time.Second},
		url:    "http://" + addr + "/api/state",
		table:  t,
	}
}

func (m model) Init() tea.Cmd {
	return m.poll()
}

func (m model) poll() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Get(m.url)
		if err != nil {
			return stateMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return stateMsg{err: fmt.Errorf("dashboard returned %s", resp.Status)}
		}
		var st dashboardState
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return stateMsg{err: err}
		}
		return stateMsg{state: st}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

type tickMsg struct{}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		return m, m.poll()

	case stateMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tick()
		}
		m.err = nil
		m.state = msg.state
		m.table.SetRows(rowsFor(msg.state.Agents))
		return m, tick()
	}
	return m, nil
}

func rowsFor(agents []agentView) []table.Row {
	rows := make([]table.Row, 0, len(agents))
	for _, a := range agents {
		task := a.Activity.CurrentTask
		if task == "" {
			task = "-"
		}
		rows = append(rows, table.Row{a.Target, a.Role, a.State, a.Activity.LastActivity, task})
	}
	return rows
}

func (m model) View() string {
	title := styleTitle.Render(" orchestrator dashboard ")
	var status string
	switch {
	case m.err != nil:
		status = styleError.Render("connection error: " + m.err.Error())
	case m.state.Paused:
		status = stylePaused.Render(fmt.Sprintf("PAUSED — %d agents, as of %s", len(m.state.Agents), m.state.GeneratedAt.Format("15:04:05")))
	default:
		status = styleFooter.Render(fmt.Sprintf("%d agents, as of %s", len(m.state.Agents), m.state.GeneratedAt.Format("15:04:05")))
	}
	footer := styleFooter.Render("q to quit")
	return title + "\n\n" + m.table.View() + "\n\n" + status + "\n" + footer
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8990", "dashboard server address")
	flag.Parse()

	p := tea.NewProgram(newModel(*addr))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "orcdash: %v\n", err)
		os.Exit(1)
	}
}
