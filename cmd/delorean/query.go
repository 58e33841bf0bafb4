package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/AndrewLester/delorean/internal/sugar"
	"github.com/AndrewLester/delorean/internal/ui"
	"github.com/AndrewLester/delorean/pkg/delorean"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

func handleQueryCommand(query string) {
	m := queryCommandModel{address: query, probed: make(chan struct{}, messages)}
	m.resetProgress()

	resultModel, err := sugar.RunProgramWithErrors(m)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if m, ok := resultModel.(queryCommandModel); ok && m.result != "" {
		fmt.Println(m.result)
	}
}

const (
	padding  = 10
	maxWidth = 80
)

const messages = 5

type queryCommandModel struct {
	progress   progress.Model
	percentage float64
	probed     chan struct{}
	address    string
	result     string
	err        error
}

type ntpQueryMessage string
type ntpQueryError struct{ err error }
type progressUpdateMessage struct{}

func ntpQueryCommand(address string, probed chan<- struct{}) tea.Cmd {
	return func() tea.Msg {
		result, err := delorean.Probe(address, messages, probed)
		if err != nil {
			return ntpQueryError{err}
		}
		return ntpQueryMessage(formatProbe(address, result))
	}
}

func formatProbe(address string, result *delorean.ProbeResult) string {
	offset := result.Offset.Round(time.Millisecond).String()
	if result.Offset > 0 {
		offset = "+" + offset
	}

	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}
	resolved := host
	if addr, err := net.ResolveIPAddr("ip", host); err == nil {
		resolved = addr.String()
	}

	return fmt.Sprint(
		offset, " +/- ", result.Err.Round(time.Millisecond), " ", address, " ", resolved, "\n",
		"stratum ", result.Stratum, ", server time ", result.Time.Format(time.RFC1123),
	)
}

func probeListenCommand(m queryCommandModel) tea.Cmd {
	return func() tea.Msg {
		<-m.probed
		return progressUpdateMessage{}
	}
}

func (m *queryCommandModel) resetProgress() {
	m.progress = progress.New(progress.WithScaledGradient("#68b1b1", "#6ea4ff"))
}

func (m queryCommandModel) Init() tea.Cmd {
	return tea.Batch(ntpQueryCommand(m.address, m.probed), probeListenCommand(m))
}

func (m queryCommandModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - padding*2 - 4
		if m.progress.Width > maxWidth {
			m.progress.Width = maxWidth
		}
		return m, nil
	case progressUpdateMessage:
		m.percentage += 1 / float64(messages)
		return m, probeListenCommand(m)
	case ntpQueryMessage:
		m.result = string(msg)
		return m, tea.Quit
	case ntpQueryError:
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m queryCommandModel) View() (s string) {
	if m.err != nil || m.result != "" {
		return
	}

	s += ui.Title("Delorean - Query") + "\n\n"
	s += m.progress.ViewAs(m.percentage) + "\n\n"
	s += ui.Help("q: exit") + "\n"
	return
}

func (m queryCommandModel) GetError() error {
	return m.err
}
