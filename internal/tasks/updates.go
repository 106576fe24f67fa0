package tasks

import (
	"fmt"
	"path/filepath"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	PhaseDiscover Phase = iota
	Classify
	WriteReport
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscover:
		return "discover"
	case Classify:
		return "classify"
	case WriteReport:
		return "write_report"
	default:
		return ""
	}
}

func discoveredUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDiscover,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d images", total),
	}
}

func classifiedUpdate(step, total int, res ImageResult) ProgressUpdate {
	name := filepath.Base(res.Path)
	if res.Error != nil {
		return ProgressUpdate{
			Phase:   Classify,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, res.Error),
			Data:    res,
		}
	}

	msg := fmt.Sprintf("[%d/%d] ✓ %s", step, total, name)
	if len(res.Results) > 0 {
		g := res.Results[0].Guess
		msg = fmt.Sprintf("%s → %d (%s %.1f%%)", msg, g.Digit, res.Results[0].Name, g.Confidence*100)
	}
	return ProgressUpdate{
		Phase:   Classify,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    res,
	}
}

func reportUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteReport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Wrote %s", path),
	}
}
