package instagram

import (
	"errors"
	"fmt"
)

// Static errors for scraping operations.
var (
	// ErrLoginFailed is returned when Instagram rejects the credentials.
	ErrLoginFailed = errors.New("instagram: login failed")
	// ErrCheckpointRequired is returned when the account is gated behind a
	// checkpoint challenge and cannot be used programmatically.
	ErrCheckpointRequired = errors.New("instagram: checkpoint challenge required")
	// ErrNoCookies is returned when a cookie set contains nothing applicable.
	ErrNoCookies = errors.New("instagram: no cookies to apply")
	// ErrNoVideo is returned when a post carries no rendered video.
	ErrNoVideo = errors.New("instagram: post has no video")
	// ErrPostUnavailable is returned when a post cannot be fetched
	// (deleted, private, or rate limited).
	ErrPostUnavailable = errors.New("instagram: post unavailable")
	// ErrBadShortcode is returned when a shortcode cannot be decoded.
	ErrBadShortcode = errors.New("instagram: invalid shortcode")
)

// Error marks a failure inside the scraping client. Handlers use it to
// distinguish expected scraping failures (returned as success:false
// payloads) from unexpected server errors.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("instagram: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// scrapeErr wraps err as an *Error unless it already is one.
func scrapeErr(op string, err error) error {
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	return &Error{Op: op, Err: err}
}
