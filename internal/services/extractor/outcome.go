package extractor

import (
	"fmt"

	"github.com/denisAlshanov/mediarelay/internal/models"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeSkip
	OutcomeFail
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkip:
		return "skip"
	case OutcomeFail:
		return "fail"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is what one extraction strategy reports back to the dispatcher.
// Skip means the strategy does not apply or found nothing; Fail means it
// broke while trying.
type Outcome struct {
	Kind   OutcomeKind
	Result *models.ExtractionResult
	Reason string
	Err    error
}

func Success(result *models.ExtractionResult) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: result}
}

func Skip(format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeSkip, Reason: fmt.Sprintf(format, args...)}
}

func Fail(err error) Outcome {
	return Outcome{Kind: OutcomeFail, Err: err, Reason: err.Error()}
}
