package domain

import "errors"

var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrActionNotAvailable  = errors.New("action not available")
	ErrQuotaExhausted      = errors.New("provider quota exhausted")
	ErrSubmitRejected      = errors.New("provider rejected submission")
	ErrExternalIDAssigned  = errors.New("external task id already assigned")
)
