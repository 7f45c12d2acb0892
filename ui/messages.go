package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pocketreader/readaloud/internal/speech"
)

// noteMsg wraps a pipeline notification for the Bubble Tea update loop.
type noteMsg speech.Notification

// notesClosedMsg is delivered when the notification channel closes.
type notesClosedMsg struct{}

// startErrMsg reports a failed Start call.
type startErrMsg struct{ err error }

// listenNotes waits for the next pipeline notification.
func listenNotes(ch <-chan speech.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return notesClosedMsg{}
		}
		return noteMsg(n)
	}
}

// startPlayback kicks off a session on the controller.
func startPlayback(ctrl *speech.Controller, url string, segments []speech.Segment, voice string, startIndex int, speed float64) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.Start(url, segments, voice, startIndex, speed); err != nil {
			return startErrMsg{err: err}
		}
		return nil
	}
}
