package main

import (
	"fmt"
	"net/rpc"
	"os"
	"time"

	deloreanrpc "github.com/AndrewLester/delorean/internal/rpc"
	"github.com/AndrewLester/delorean/internal/sugar"
	"github.com/AndrewLester/delorean/internal/ui"
	"github.com/AndrewLester/delorean/pkg/delorean"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func handleDeloreanUI(socket string) {
	m := deloreanUIModel{socket: socket, table: setupTable()}

	if _, err := sugar.RunProgramWithErrors(m); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

const fetchInfoPeriod = time.Second * 5

type deloreanUIModel struct {
	socket string
	client *rpc.Client

	table            table.Model
	status           deloreanrpc.Status
	daemonKillStatus string
	err              error
}

type dialSocketMessage *rpc.Client
type fetchInfoMessage deloreanrpc.Status
type controlError struct{ err error }
type tickMsg time.Time

func dialSocketCommand(m deloreanUIModel) tea.Cmd {
	return func() tea.Msg {
		client, err := deloreanrpc.Dial(m.socket)
		if err != nil {
			return controlError{fmt.Errorf("error connecting to %s daemon: %w", daemonName, err)}
		}

		return dialSocketMessage(client)
	}
}

func fetchInfoCommand(m deloreanUIModel) tea.Cmd {
	return func() tea.Msg {
		var status deloreanrpc.Status
		if err := m.client.Call(deloreanrpc.FetchStatusMethod, 0, &status); err != nil {
			return controlError{fmt.Errorf("error getting info from daemon: %w", err)}
		}
		return fetchInfoMessage(status)
	}
}

func enableRandomCommand(m deloreanUIModel) tea.Cmd {
	return func() tea.Msg {
		var status deloreanrpc.Status
		change := deloreanrpc.PolicyChange{Kind: delorean.PolicyRandom}
		if err := m.client.Call(deloreanrpc.SetPolicyMethod, change, &status); err != nil {
			return controlError{fmt.Errorf("error changing policy: %w", err)}
		}
		return fetchInfoMessage(status)
	}
}

func stopDaemonCommand() tea.Cmd {
	return func() tea.Msg {
		if err := killDaemon(); err != nil {
			return controlError{err}
		}
		return nil
	}
}

func tickCommand(duration time.Duration) tea.Cmd {
	return tea.Tick(duration, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m deloreanUIModel) Init() tea.Cmd {
	return dialSocketCommand(m)
}

func (m deloreanUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			if m.table.Focused() {
				m.table.Blur()
			} else {
				m.table.Focus()
			}
		case "random", "r":
			if m.client != nil && !m.status.Random {
				return m, enableRandomCommand(m)
			}
			return m, nil
		case "stop", "s":
			m.daemonKillStatus = "Stopping " + daemonName
			return m, tea.Sequence(stopDaemonCommand(), tea.Quit)
		case "ctrl+c", "q":
			return m, tea.Quit
		}

		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case dialSocketMessage:
		m.client = msg
		return m, tickCommand(0)
	case fetchInfoMessage:
		m.status = deloreanrpc.Status(msg)
		m.table.SetRows(clientRows(m.status, time.Now()))
		return m, nil
	case controlError:
		m.err = msg.err
		return m, tea.Quit
	case tickMsg:
		return m, tea.Batch(tickCommand(fetchInfoPeriod), fetchInfoCommand(m))
	default:
		return m, nil
	}
}

func clientRows(status deloreanrpc.Status, now time.Time) []table.Row {
	rows := []table.Row{}
	for _, client := range status.Clients {
		rows = append(rows, table.Row{
			client.Addr,
			client.LastSeen.Local().Format(time.DateTime),
			fmt.Sprintf("%s ago", now.Sub(client.LastSeen).Round(time.Second)),
		})
	}
	return rows
}

func policySummary(status deloreanrpc.Status, now time.Time) string {
	if status.Random {
		return "Random future time per client"
	}

	summary := ""
	if status.ForcedDate != 0 {
		summary = "Pinned to " + time.Unix(int64(status.ForcedDate), 0).Local().Format(time.DateTime)
	} else {
		reported := now.Add(seconds(status.BaseOffset))
		summary = fmt.Sprintf("Offset %s, reporting %s", seconds(status.BaseOffset), reported.Local().Format(time.DateTime))
	}
	if status.SkimStep != 0 {
		summary += fmt.Sprintf(", creeping from %s to %s", seconds(status.SkimThreshold), seconds(status.SkimThreshold+status.SkimStep))
	}
	return summary
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Second)
}

func (m deloreanUIModel) View() (s string) {
	if m.err != nil {
		return
	}

	s += ui.Title("Delorean") + "\n"
	s += policySummary(m.status, time.Now()) + "\n"
	s += ui.TableBase(m.table.View()) + "\n"
	s += ui.Help(fmt.Sprintf("received %d, sent %d, malformed %d, failed %d",
		m.status.Received, m.status.Sent, m.status.Malformed, m.status.Transient)) + "\n\n"
	if m.daemonKillStatus != "" {
		s += ui.Warning(m.daemonKillStatus) + "\n"
	} else {
		s += ui.Help("q: exit, r: random mode, s: stop daemon") + "\n"
	}
	return
}

func (m deloreanUIModel) GetError() error {
	return m.err
}

func setupTable() table.Model {
	columns := []table.Column{
		{Title: "Client", Width: 40},
		{Title: "Last Seen", Width: 20},
		{Title: "Since", Width: 15},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(7),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ui.TableGray).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}
