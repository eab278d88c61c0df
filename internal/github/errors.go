package github

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v69/github"
	"github.com/pkg/errors"
)

// IdentityError indicates that the gateway could not establish its identity as
// a GitHub App, usually because no usable private key is available. It is not
// worth retrying.
type IdentityError struct {
	Reason string
	Err    error
}

func (i *IdentityError) Error() string {
	if i.Err == nil {
		return i.Reason
	}
	return fmt.Sprintf("%s: %s", i.Reason, i.Err)
}

func (i *IdentityError) Unwrap() error {
	return i.Err
}

// UpstreamAuthError indicates that GitHub rejected the App JWT during a token
// exchange, or rejected an installation token even after it was refreshed.
type UpstreamAuthError struct {
	InstallationID int64
	// StatusCode is the HTTP status GitHub responded with, or zero if no
	// response was received.
	StatusCode int
	Err        error
}

func (u *UpstreamAuthError) Error() string {
	return fmt.Sprintf(
		"GitHub rejected credentials for installation %d (status %d): %s",
		u.InstallationID,
		u.StatusCode,
		u.Err,
	)
}

func (u *UpstreamAuthError) Unwrap() error {
	return u.Err
}

// RateLimitedError indicates that GitHub refused a request because a rate limit
// was exceeded. Nothing in this package retries; Reset says when it is worth
// trying again.
type RateLimitedError struct {
	Reset time.Time
	Err   error
}

func (r *RateLimitedError) Error() string {
	return fmt.Sprintf(
		"GitHub rate limit exceeded; resets at %s: %s",
		r.Reset.UTC().Format(time.RFC3339),
		r.Err,
	)
}

func (r *RateLimitedError) Unwrap() error {
	return r.Err
}

// IsNotFound returns true if err carries a 404 response from GitHub.
func IsNotFound(err error) bool {
	var errResp *github.ErrorResponse
	return errors.As(err, &errResp) &&
		errResp.Response != nil &&
		errResp.Response.StatusCode == http.StatusNotFound
}

func statusCode(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

// classify converts errors returned by go-github into this package's error
// taxonomy. Errors that don't belong to any class are returned unchanged.
func classify(err error, installationID int64, now time.Time) error {
	if err == nil {
		return nil
	}
	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &RateLimitedError{Reset: rateLimitErr.Rate.Reset.Time, Err: err}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &RateLimitedError{Reset: now.Add(abuseErr.GetRetryAfter()), Err: err}
	}
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		header := errResp.Response.Header
		switch code := errResp.Response.StatusCode; {
		case code == http.StatusTooManyRequests,
			code == http.StatusForbidden && isRateLimited(header):
			return &RateLimitedError{Reset: rateLimitReset(header, now), Err: err}
		case code == http.StatusUnauthorized:
			return &UpstreamAuthError{
				InstallationID: installationID,
				StatusCode:     code,
				Err:            err,
			}
		}
	}
	return err
}

func isRateLimited(header http.Header) bool {
	return header.Get("X-RateLimit-Remaining") == "0" ||
		header.Get("Retry-After") != ""
}

// rateLimitReset works out when a rate limit lifts from response headers.
// Retry-After takes precedence over X-RateLimit-Reset. If neither is usable,
// GitHub's guidance for secondary rate limits is to wait at least a minute.
func rateLimitReset(header http.Header, now time.Time) time.Time {
	if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if epoch, err :=
		strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		return time.Unix(epoch, 0)
	}
	return now.Add(time.Minute)
}
