package refresh

import (
	"fmt"
	"sync"
	"time"
)

// Mode names the kind of session.
type Mode string

const (
	ModeRefresh Mode = "refresh"
	ModeAuto    Mode = "auto"
	ModeSingle  Mode = "single"
	ModeAdd     Mode = "add"
	ModeImport  Mode = "import"
)

// Progress is a snapshot of the running session.
type Progress struct {
	Active    bool      `json:"active"`
	Mode      Mode      `json:"mode,omitempty"`
	Round     int       `json:"round,omitempty"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Pending   int       `json:"pending"`
	Label     string    `json:"label,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// progressState is the mutex-guarded live Progress.
type progressState struct {
	mu sync.RWMutex
	p  Progress
}

func (s *progressState) get() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

func (s *progressState) begin(mode Mode, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = Progress{
		Active:    true,
		Mode:      mode,
		Total:     total,
		Pending:   total,
		StartedAt: time.Now(),
	}
}

// round records the start of a round with pending ids left. The reading
// starts at the number of ids already settled.
func (s *progressState) round(round, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Round = round
	s.p.Pending = pending
	s.p.Current = s.p.Total - pending
	s.p.Label = ""
}

// completed records the completed-th item of the current round finishing.
func (s *progressState) completed(completed int, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, label := progressReading(s.p.Round, s.p.Total, s.p.Pending, completed, id)
	s.p.Current = current
	s.p.Label = label
}

func (s *progressState) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Active = false
	s.p.Label = ""
}

// progressReading computes the externally visible (current, label) pair.
// Round 1 counts its own completions; later rounds add them to the ids
// that were already settled before the round began.
func progressReading(round, total, pendingBefore, completed int, id string) (int, string) {
	if round <= 1 {
		return completed, id
	}
	return total - pendingBefore + completed, fmt.Sprintf("retry (round %d): %s", round, id)
}
