// Package ui provides the Bubbletea terminal user interface for hearmodel
package ui

import (
	"fmt"
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// FileStatus represents the processing state of a single file
type FileStatus int

const (
	StatusQueued FileStatus = iota
	StatusProcessing
	StatusComplete
	StatusError
)

// levelFloor is the display floor for levels in dBFS
const levelFloor = -96.0

// FileProgress tracks progress for a single stimulus file
type FileProgress struct {
	InputPath  string
	OutputPath string
	Status     FileStatus

	// Progress tracking (percentage-based)
	Progress    float64 // 0.0 to 1.0
	Block       int
	StartTime   time.Time
	ElapsedTime time.Duration

	// Live model state
	CurrentLevel float64 // Output level in dBFS
	PeakLevel    float64 // Highest block level seen so far
	AGCGainDB    float64
	GainLimitDB  float64

	// Completion results
	InputLevel  float64
	OutputLevel float64
	Blocks      int
	Warnings    int

	// Error tracking
	Error error
}

// Model is the Bubbletea model for the processing UI
type Model struct {
	// File queue
	Files          []FileProgress
	CurrentIndex   int
	TotalFiles     int
	CompletedFiles int
	FailedFiles    int

	// Global state
	StartTime time.Time
	Done      bool

	// Channel for receiving progress updates from the processor
	ProgressChan chan tea.Msg

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a new UI model with the given input files
func NewModel(inputFiles []string) Model {
	files := make([]FileProgress, len(inputFiles))
	for i, path := range inputFiles {
		files[i] = FileProgress{
			InputPath:    path,
			Status:       StatusQueued,
			CurrentLevel: levelFloor,
			PeakLevel:    levelFloor,
		}
	}

	return Model{
		Files:        files,
		CurrentIndex: -1, // No file processing yet
		TotalFiles:   len(inputFiles),
		StartTime:    time.Now(),
		ProgressChan: make(chan tea.Msg, 100),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return waitForProgress(m.ProgressChan)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		logrus.WithFields(logrus.Fields{"width": m.Width, "height": m.Height}).Debug("window size")

	case ProgressMsg:
		if m.CurrentIndex >= 0 && m.CurrentIndex < len(m.Files) {
			m.Files[m.CurrentIndex] = updateFileProgress(m.Files[m.CurrentIndex], msg)
		}
		return m, waitForProgress(m.ProgressChan)

	case FileStartMsg:
		logrus.WithFields(logrus.Fields{"index": msg.FileIndex, "file": msg.FileName}).Debug("file started")
		m.CurrentIndex = msg.FileIndex
		m.Files[m.CurrentIndex].Status = StatusProcessing
		m.Files[m.CurrentIndex].StartTime = time.Now()
		return m, waitForProgress(m.ProgressChan)

	case FileCompleteMsg:
		logrus.WithFields(logrus.Fields{"index": msg.FileIndex, "error": msg.Error}).Debug("file complete")
		if msg.FileIndex >= 0 && msg.FileIndex < len(m.Files) {
			f := &m.Files[msg.FileIndex]
			f.Status = StatusComplete
			f.InputLevel = msg.InputLevel
			f.OutputLevel = msg.OutputLevel
			f.OutputPath = msg.OutputPath
			f.Blocks = msg.Blocks
			f.Warnings = msg.Warnings
			f.Error = msg.Error

			if msg.Error != nil {
				f.Status = StatusError
				m.FailedFiles++
			} else {
				f.Progress = 1
				m.CompletedFiles++
			}
		}
		return m, waitForProgress(m.ProgressChan)

	case AllCompleteMsg:
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
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

// updateFileProgress updates a FileProgress based on a ProgressMsg
func updateFileProgress(fp FileProgress, msg ProgressMsg) FileProgress {
	fp.Progress = msg.Progress
	fp.Block = msg.Block
	fp.ElapsedTime = time.Since(fp.StartTime)
	fp.AGCGainDB = msg.AGCGainDB
	fp.GainLimitDB = msg.GainLimitDB

	level := msg.Level
	if math.IsInf(level, -1) || level < levelFloor {
		level = levelFloor
	}
	fp.CurrentLevel = level
	fp.PeakLevel = math.Max(fp.PeakLevel, level)

	return fp
}

// waitForProgress creates a command that waits for progress messages
func waitForProgress(progressChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-progressChan
	}
}
