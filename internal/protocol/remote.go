package protocol

import (
	"encoding/json"
	"fmt"
)

// RemoteMessageType is the discriminant of a message sent to a local server.
type RemoteMessageType string

const (
	RemoteReadyToInitialization     RemoteMessageType = "readyToInitialization"
	RemoteHTTPRequest               RemoteMessageType = "httpRequest"
	RemoteAuthenticationFail        RemoteMessageType = "authenticationFail"
	RemoteAuthenticatedSuccessfully RemoteMessageType = "authenticatedSuccessfully"
	RemoteAckOk                     RemoteMessageType = "ackOk"
	RemoteRegisteredUsers           RemoteMessageType = "registeredUsers"
	RemoteRegisterUserResults       RemoteMessageType = "registerUserResults"
	RemoteFetchLogs                 RemoteMessageType = "fetchLogs"
)

// RemoteMessage is an outbound envelope.
type RemoteMessage struct {
	Type    RemoteMessageType `json:"remoteMessagesType"`
	Message map[string]any    `json:"message"`
}

// HTTPRequest is an end user request forwarded to a local server.
type HTTPRequest struct {
	RequestID   string          `json:"requestId"`
	HTTPPath    string          `json:"httpPath"`
	HTTPMethod  string          `json:"httpMethod"`
	HTTPBody    json.RawMessage `json:"httpBody,omitempty"`
	HTTPSession string          `json:"httpSession,omitempty"`
}

// RegisterResult answers registerAccount and unregisterAccount. Results is
// nil on success.
type RegisterResult struct {
	User    string         `json:"user"`
	Results *ErrorResponse `json:"results,omitempty"`
}

func (m RemoteMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func empty(t RemoteMessageType) RemoteMessage {
	return RemoteMessage{Type: t, Message: map[string]any{}}
}

func ReadyToInitialization() RemoteMessage     { return empty(RemoteReadyToInitialization) }
func AuthenticatedSuccessfully() RemoteMessage { return empty(RemoteAuthenticatedSuccessfully) }
func AckOk() RemoteMessage                     { return empty(RemoteAckOk) }
func FetchLogs() RemoteMessage                 { return empty(RemoteFetchLogs) }

func AuthenticationFail(code int, message string) RemoteMessage {
	return RemoteMessage{
		Type: RemoteAuthenticationFail,
		Message: map[string]any{
			string(RemoteAuthenticationFail): ErrorResponse{ResponseCode: code, Message: message},
		},
	}
}

func ForwardHTTPRequest(req HTTPRequest) RemoteMessage {
	return RemoteMessage{Type: RemoteHTTPRequest, Message: map[string]any{string(RemoteHTTPRequest): req}}
}

func RegisteredUsers(users []string) RemoteMessage {
	if users == nil {
		users = []string{}
	}
	return RemoteMessage{Type: RemoteRegisteredUsers, Message: map[string]any{string(RemoteRegisteredUsers): users}}
}

func RegisterUserResults(r RegisterResult) RemoteMessage {
	return RemoteMessage{Type: RemoteRegisterUserResults, Message: map[string]any{string(RemoteRegisterUserResults): r}}
}

// ParseRemote splits an outbound envelope into its discriminant and raw
// payload. The payload is nil for messages without a body.
func ParseRemote(data []byte) (RemoteMessageType, json.RawMessage, error) {
	var env struct {
		Type    RemoteMessageType          `json:"remoteMessagesType"`
		Message map[string]json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("%w: missing remoteMessagesType", ErrMalformed)
	}
	return env.Type, env.Message[string(env.Type)], nil
}

// ErrorHTTPResponse builds the synthetic 501 reply used when a local server
// cannot answer.
func ErrorHTTPResponse(requestID string, code int, message string) *HTTPResponse {
	body, _ := json.Marshal(ErrorResponse{ResponseCode: code, Message: message})
	return &HTTPResponse{
		RequestID:  requestID,
		HTTPStatus: 501,
		HTTPBody:   body,
	}
}
