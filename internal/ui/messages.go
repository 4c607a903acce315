package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/leveller/internal/batch"
	"github.com/linuxmatters/leveller/internal/processor"
)

// PlannedMsg lists the files the batch will process, in order
type PlannedMsg struct {
	Sources []string
}

// FileStartMsg indicates a file has been handed to a worker
type FileStartMsg struct {
	FileIndex int
	FileName  string
}

// ProgressMsg reports the pass a file has entered
type ProgressMsg struct {
	FileIndex int
	Pass      int    // 1 measuring, 2 normalising, 3 verifying
	PassName  string // e.g. "Measuring"
}

// FileCompleteMsg indicates a file has finished, successfully or not
type FileCompleteMsg struct {
	FileIndex int
	Outcome   processor.Outcome
}

// AllCompleteMsg indicates the batch has returned
type AllCompleteMsg struct {
	Result *batch.Result
	Err    error
}

// MessageFor translates a batch event into the message the model handles.
func MessageFor(ev batch.Event) tea.Msg {
	switch ev.Kind {
	case batch.EventPlanned:
		return PlannedMsg{Sources: ev.Sources}
	case batch.EventFileStart:
		return FileStartMsg{FileIndex: ev.Index, FileName: ev.Source}
	case batch.EventPass:
		return ProgressMsg{FileIndex: ev.Index, Pass: ev.Pass, PassName: ev.PassName}
	case batch.EventFileComplete:
		if ev.Outcome == nil {
			return nil
		}
		return FileCompleteMsg{FileIndex: ev.Index, Outcome: *ev.Outcome}
	}
	return nil
}
