package pesapal

import "fmt"

// AuthError indicates the gateway rejected our credentials or the token
// request itself failed.
type AuthError struct {
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pesapal auth failed: %v", e.Err)
	}
	return fmt.Sprintf("pesapal auth failed: %s (%s)", e.Message, e.Code)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SubmitError indicates an order submission was rejected or the response
// could not be understood.
type SubmitError struct {
	Status  string
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pesapal order submission failed: %v", e.Err)
	}
	return fmt.Sprintf("pesapal order submission failed: %s (status %s)", e.Message, e.Status)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// StatusError indicates a transaction status query failed.
type StatusError struct {
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pesapal status query failed: %v", e.Err)
	}
	return fmt.Sprintf("pesapal status query failed: %s", e.Message)
}

func (e *StatusError) Unwrap() error { return e.Err }
