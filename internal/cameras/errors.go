package cameras

import (
	"fmt"
)

// CredentialStepError wraps a credential-reveal failure with the step
// that failed and a code an API handler can map to a response, without
// leaking the underlying crypto error to the client.
type CredentialStepError struct {
	Step        string
	ErrorCode   string
	SafeMessage string
	Err         error
}

func (e *CredentialStepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Step, e.ErrorCode, e.SafeMessage, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Step, e.ErrorCode, e.SafeMessage)
}

func (e *CredentialStepError) Unwrap() error {
	return e.Err
}

// NewCredentialStepError wraps err with the step and code at which a
// credential-reveal operation failed.
func NewCredentialStepError(step, code, msg string, err error) *CredentialStepError {
	return &CredentialStepError{
		Step:        step,
		ErrorCode:   code,
		SafeMessage: msg,
		Err:         err,
	}
}
