package refresh

import "time"

// RoundPlan is the concurrency and per-task delay of one round.
type RoundPlan struct {
	Concurrency int

	// Each task waits a uniformly random time in [MinDelay, MaxDelay]
	// before starting. Equal values give a fixed delay.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// delay picks the pre-task delay; r is a random number in [0, 1).
func (p RoundPlan) delay(r float64) time.Duration {
	if p.MaxDelay <= p.MinDelay {
		return p.MinDelay
	}
	return p.MinDelay + time.Duration(r*float64(p.MaxDelay-p.MinDelay))
}

// Schedule maps round numbers to plans.
type Schedule struct {
	// Rounds[i] applies to round i+1. Rounds past the end reuse the last plan.
	Rounds []RoundPlan

	// Pause is the wait between rounds while ids are still pending.
	Pause time.Duration
}

// Plan returns the plan for round (1-based).
func (s Schedule) Plan(round int) RoundPlan {
	if len(s.Rounds) == 0 {
		return RoundPlan{Concurrency: 1}
	}
	if round < 1 {
		round = 1
	}
	if round > len(s.Rounds) {
		return s.Rounds[len(s.Rounds)-1]
	}
	return s.Rounds[round-1]
}

// DefaultSchedule is used for refresh sessions.
func DefaultSchedule() Schedule {
	return Schedule{
		Rounds: []RoundPlan{
			{Concurrency: 8},
			{Concurrency: 3, MinDelay: time.Second, MaxDelay: 2 * time.Second},
			{Concurrency: 1, MinDelay: 2 * time.Second, MaxDelay: 2 * time.Second},
		},
		Pause: 2 * time.Second,
	}
}

// ImportSchedule is used when importing a batch of new ids.
func ImportSchedule() Schedule {
	return Schedule{
		Rounds: []RoundPlan{
			{Concurrency: 5},
			{Concurrency: 2, MinDelay: time.Second, MaxDelay: time.Second},
		},
		Pause: 2 * time.Second,
	}
}
