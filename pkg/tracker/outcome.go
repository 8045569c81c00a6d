package tracker

// OutcomeKind classifies the result of one refresh attempt.
type OutcomeKind string

const (
	// OutcomeSuccess carries the updated entity.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeTransient may succeed on a later attempt.
	OutcomeTransient OutcomeKind = "transient"

	// OutcomeFatal will never succeed: the upstream rejected the id.
	OutcomeFatal OutcomeKind = "fatal"
)

// Outcome is the result of refreshing or creating one entity.
type Outcome struct {
	ID   string
	Kind OutcomeKind

	// Entity and HasNewActivity are set for OutcomeSuccess.
	Entity         Entity
	HasNewActivity bool

	// Err is set for OutcomeTransient and OutcomeFatal.
	Err error
}

// Success builds a successful outcome.
func Success(e Entity, hasNewActivity bool) Outcome {
	return Outcome{ID: e.ID, Kind: OutcomeSuccess, Entity: e, HasNewActivity: hasNewActivity}
}

// Transient builds a retryable failure.
func Transient(id string, err error) Outcome {
	return Outcome{ID: id, Kind: OutcomeTransient, Err: err}
}

// Fatal builds a permanent failure.
func Fatal(id string, err error) Outcome {
	return Outcome{ID: id, Kind: OutcomeFatal, Err: err}
}

// Settled reports whether the outcome ends retrying for this id.
func (o Outcome) Settled() bool {
	return o.Kind != OutcomeTransient
}
