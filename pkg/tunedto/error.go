package tunedto

// DomainError is the error shape crossing the package boundary to external
// consumers of run data.
type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "tuning service error"
}
