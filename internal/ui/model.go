// Package ui provides the Bubbletea terminal user interface for leveller
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/leveller/internal/batch"
	"github.com/linuxmatters/leveller/internal/processor"
)

// FileStatus represents the processing state of a single file
type FileStatus int

const (
	StatusQueued FileStatus = iota
	StatusMeasuring
	StatusNormalising
	StatusVerifying
	StatusComplete
	StatusError
	StatusCancelled
)

// Active reports whether a worker currently holds the file.
func (s FileStatus) Active() bool {
	return s == StatusMeasuring || s == StatusNormalising || s == StatusVerifying
}

// FileProgress tracks progress for a single audio file
type FileProgress struct {
	InputPath string
	Status    FileStatus

	CurrentPass int
	PassName    string
	StartTime   time.Time

	// Set on completion
	Outcome *processor.Outcome
}

// Model is the Bubbletea model for the processing UI
type Model struct {
	Files     []FileProgress
	Completed int
	Failed    int
	Cancelled int

	PresetName string
	Target     processor.Target

	StartTime  time.Time
	Done       bool
	Cancelling bool
	Result     *batch.Result
	Err        error

	// cancel stops the batch; the UI quits once the batch returns
	cancel func()

	progress progress.Model
	spinner  spinner.Model

	Width  int
	Height int
}

// NewModel creates a UI model for a batch run. cancel is called when the
// user quits.
func NewModel(presetName string, target processor.Target, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model{
		PresetName: presetName,
		Target:     target,
		StartTime:  time.Now(),
		cancel:     cancel,
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		spinner:    s,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.Done {
				return m, tea.Quit
			}
			if !m.Cancelling && m.cancel != nil {
				m.cancel()
			}
			m.Cancelling = true
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case PlannedMsg:
		m.Files = make([]FileProgress, len(msg.Sources))
		for i, path := range msg.Sources {
			m.Files[i] = FileProgress{InputPath: path, Status: StatusQueued}
		}

	case FileStartMsg:
		if f := m.file(msg.FileIndex); f != nil {
			f.Status = StatusMeasuring
			f.StartTime = time.Now()
		}

	case ProgressMsg:
		if f := m.file(msg.FileIndex); f != nil {
			f.CurrentPass = msg.Pass
			f.PassName = msg.PassName
			f.Status = statusForPass(msg.Pass)
		}

	case FileCompleteMsg:
		if f := m.file(msg.FileIndex); f != nil {
			o := msg.Outcome
			f.Outcome = &o
			switch o.Status {
			case processor.StatusSucceeded:
				f.Status = StatusComplete
				m.Completed++
			case processor.StatusCancelled:
				f.Status = StatusCancelled
				m.Cancelled++
			default:
				f.Status = StatusError
				m.Failed++
			}
		}

	case AllCompleteMsg:
		m.Done = true
		m.Result = msg.Result
		m.Err = msg.Err
		if msg.Result != nil {
			// Files that never started only appear in the result
			for i, o := range msg.Result.Outcomes {
				if f := m.file(i); f != nil && f.Outcome == nil {
					f.Outcome = &o
					if o.Status == processor.StatusCancelled {
						f.Status = StatusCancelled
						m.Cancelled++
					}
				}
			}
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) file(i int) *FileProgress {
	if i < 0 || i >= len(m.Files) {
		return nil
	}
	return &m.Files[i]
}

func statusForPass(pass int) FileStatus {
	switch pass {
	case processor.PassNormalise:
		return StatusNormalising
	case processor.PassVerify:
		return StatusVerifying
	default:
		return StatusMeasuring
	}
}

// Finished is the number of files in a terminal state.
func (m Model) Finished() int {
	return m.Completed + m.Failed + m.Cancelled
}

// View renders the UI
func (m Model) View() string {
	if m.Width == 0 {
		return fmt.Sprintf("Initializing...\nFiles: %d\n", len(m.Files))
	}
	if m.Done {
		return renderCompletionSummary(m)
	}
	return renderProcessingView(m)
}
