package service

import (
	"errors"
	"fmt"
)

// Pipeline step names, used in PipelineError and step metrics.
const (
	StepWeather    = "weather"
	StepGeocode    = "geocode"
	StepNews       = "news"
	StepPrompt     = "prompt"
	StepCompletion = "completion"
	StepParse      = "parse"
	StepPersist    = "persist"
)

// PipelineError reports the step that aborted a plan run. Err is the
// provider or configuration error unchanged.
type PipelineError struct {
	Step string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsPipelineError reports whether err is or wraps a *PipelineError.
func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}
