package metrics

// Status label values shared by the collectors.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Catalog write operations.
const (
	OpAdd    = "add"
	OpBatch  = "add_batch"
	OpRemove = "remove"
)

// Builder card outcomes.
const (
	OutcomeAdded   = "added"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Matcher request outcomes.
const (
	OpMatch     = "match"
	OpRecognize = "recognize"

	OutcomeMatched     = "matched"
	OutcomeRecognized  = "recognized"
	OutcomeNoMatch     = "no_match"
	OutcomeNoGoodMatch = "no_good_match"
	OutcomeError       = "error"
)

func statusLabel(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
