package webhooks

import "fmt"

// AuthenticationError indicates that a delivery could not be proven to have
// come from GitHub.
type AuthenticationError struct {
	Detail string
}

func (a *AuthenticationError) Error() string {
	return a.Detail
}

// ParseError indicates that a delivery's body could not be parsed.
type ParseError struct {
	Err error
}

func (p *ParseError) Error() string {
	return fmt.Sprintf("Invalid JSON payload: %s", p.Err)
}

func (p *ParseError) Unwrap() error {
	return p.Err
}
