package sugar

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ErrorModel is a model that can finish with a failure of its own, such as
// an unreachable daemon.
type ErrorModel interface {
	tea.Model
	GetError() error
}

// RunProgramWithErrors runs model to completion. A bubbletea failure wins
// over the model's own error.
func RunProgramWithErrors(model ErrorModel, opts ...tea.ProgramOption) (tea.Model, error) {
	resultModel, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		return resultModel, err
	}

	if errorModel, ok := resultModel.(ErrorModel); ok {
		return resultModel, errorModel.GetError()
	}
	return resultModel, nil
}
