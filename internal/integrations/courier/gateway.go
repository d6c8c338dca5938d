// Package courier defines what reconciliation demands of a courier integration.
// Adapters in the subpackages translate vendor feeds into models.TrackingBatch.
package courier

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/BearBump/ShipSync/internal/models"
	"github.com/pkg/errors"
)

type Gateway interface {
	FetchTracking(ctx context.Context, trackNumber string) (models.TrackingBatch, error)
}

type ErrorClass string

const (
	ClassTimeout     ErrorClass = "timeout"
	ClassHTTPStatus  ErrorClass = "http_status"
	ClassMalformed   ErrorClass = "malformed"
	ClassVendor      ErrorClass = "vendor"
	ClassRateLimited ErrorClass = "rate_limited"
	ClassTransport   ErrorClass = "transport"
	ClassCancelled   ErrorClass = "cancelled"
)

// GatewayError is the typed failure every adapter reports.
type GatewayError struct {
	Class      ErrorClass `json:"class"`
	StatusCode int        `json:"statusCode,omitempty"`
	Message    string     `json:"message"`
	Err        error      `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("courier %s (%d): %s", e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("courier %s: %s", e.Class, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func HTTPStatusError(code int) *GatewayError {
	class := ClassHTTPStatus
	if code == http.StatusTooManyRequests {
		class = ClassRateLimited
	}
	return &GatewayError{Class: class, StatusCode: code, Message: http.StatusText(code)}
}

func MalformedError(err error) *GatewayError {
	return &GatewayError{Class: ClassMalformed, Message: err.Error(), Err: err}
}

func VendorError(msg string) *GatewayError {
	return &GatewayError{Class: ClassVendor, Message: msg}
}

// Classify turns any gateway failure into a *GatewayError.
func Classify(err error) *GatewayError {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &GatewayError{Class: ClassTimeout, Message: err.Error(), Err: err}
	case errors.Is(err, context.Canceled):
		return &GatewayError{Class: ClassCancelled, Message: err.Error(), Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &GatewayError{Class: ClassTimeout, Message: err.Error(), Err: err}
	}
	return &GatewayError{Class: ClassTransport, Message: err.Error(), Err: err}
}
