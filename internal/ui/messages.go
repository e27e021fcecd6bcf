package ui

// ProgressMsg represents a progress update from the simulation
type ProgressMsg struct {
	Progress    float64 // 0.0 to 1.0
	Block       int
	Level       float64 // Output level of the latest block in dBFS
	AGCGainDB   float64
	GainLimitDB float64 // lowest canceller gain ceiling, 0 when inactive
}

// FileStartMsg indicates a new file has started processing
type FileStartMsg struct {
	FileIndex int
	FileName  string
}

// FileCompleteMsg indicates a file has finished processing
type FileCompleteMsg struct {
	FileIndex   int
	InputLevel  float64 // RMS dBFS
	OutputLevel float64 // RMS dBFS
	Blocks      int
	Warnings    int
	OutputPath  string
	Error       error
}

// AllCompleteMsg indicates all files have been processed
type AllCompleteMsg struct{}
