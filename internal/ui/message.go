package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgClassified MsgKind = iota
	MsgProgressUpdate
	MsgBatchComplete
)

type classified struct {
	path    string
	results []models.PredictionResult
	err     error
}

type batchComplete struct {
	result *tasks.BatchResult
	err    error
}

// classifiedMsg is the constructor for [MsgClassified]
func classifiedMsg(path string, results []models.PredictionResult, err error) Msg {
	return Msg{kind: MsgClassified, data: classified{path, results, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// batchCompleteMsg is the constructor for [MsgBatchComplete]
func batchCompleteMsg(result *tasks.BatchResult, err error) Msg {
	return Msg{kind: MsgBatchComplete, data: batchComplete{result, err}}
}
