package mailbox

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// AuthError indicates that Gmail rejected the login. It is fatal: the
// caller should abort immediately rather than retry.
type AuthError struct {
	Account string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Account, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// RateLimitError indicates Gmail throttled the session. Retryable with
// backoff.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientError indicates a network-level failure (timeout, reset,
// disconnect) that a fresh attempt may survive. Retryable with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying with backoff. Auth
// failures and anything unclassified are not.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	var tr *TransientError
	return errors.As(err, &rl) || errors.As(err, &tr)
}

// classify maps a raw IMAP or network error onto the taxonomy. Errors that
// fit no category are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if IsAuthError(err) || IsRetryable(err) {
		return err
	}

	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		switch imapErr.Code {
		case imap.ResponseCodeAuthenticationFailed, imap.ResponseCodeAuthorizationFailed:
			return &AuthError{Message: imapErr.Text}
		case imap.ResponseCodeLimit, imap.ResponseCodeOverQuota:
			return &RateLimitError{Err: err}
		case imap.ResponseCodeUnavailable, imap.ResponseCodeInUse:
			return &TransientError{Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return &TransientError{Err: err}
	}

	// Gmail sometimes signals throttling in free text without a
	// response code.
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"throttl", "rate limit", "too many", "overquota", "temporary"} {
		if strings.Contains(msg, marker) {
			return &RateLimitError{Err: err}
		}
	}
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") {
		return &TransientError{Err: err}
	}

	return err
}
