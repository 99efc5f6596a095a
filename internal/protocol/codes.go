// Package protocol describes the messages exchanged with local servers over
// their channel and the response codes shared with HTTP callers.
package protocol

import "fmt"

// Response codes carried in ErrorResponse bodies.
const (
	CodeAuthFailed       = 3403
	CodeUnauthorized     = 4001
	CodeNoConnection     = 4501
	CodeForwardFailed    = 5000
	CodeRegisterInternal = 5001
	CodeRegisterInvalid  = 6403
	CodeTimeout          = 8503
	CodeInternal         = 13501
)

// ErrorResponse is the body of every error reply, on the channel and over
// HTTP.
type ErrorResponse struct {
	ResponseCode int    `json:"responseCode"`
	Message      string `json:"message,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%d: %s", e.ResponseCode, e.Message)
}
