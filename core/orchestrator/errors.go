package orchestrator

import (
	"fmt"

	"finetune-orchestrator/core/models"

	"github.com/pkg/errors"
)

// ErrMissingDependency marks failures caused by an absent external tool
var ErrMissingDependency = models.ErrMissingDependency

// JobError is the failure of one workflow step
type JobError struct {
	Step models.JobStep
	Err  error
}

func newJobError(step models.JobStep, err error) *JobError {
	return &JobError{Step: step, Err: errors.WithStack(err)}
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Stack renders the error with the stack captured where the step failed
func (e *JobError) Stack() string {
	return fmt.Sprintf("%+v", e.Err)
}
