package sugar

import (
	"bytes"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingModel struct {
	err error
}

type failMsg struct{ err error }

func (m failingModel) Init() tea.Cmd {
	return func() tea.Msg { return failMsg{errors.New("daemon unreachable")} }
}

func (m failingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(failMsg); ok {
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m failingModel) View() string { return "" }

func (m failingModel) GetError() error { return m.err }

func TestRunProgramWithErrors(t *testing.T) {
	var in, out bytes.Buffer

	resultModel, err := RunProgramWithErrors(failingModel{}, tea.WithInput(&in), tea.WithOutput(&out))
	require.Error(t, err)
	assert.Equal(t, "daemon unreachable", err.Error())
	assert.IsType(t, failingModel{}, resultModel)
}
