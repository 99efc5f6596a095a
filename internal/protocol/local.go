package protocol

import (
	"encoding/json"
	"errors"
)

// LocalMessageType is the discriminant of a message sent by a local server.
type LocalMessageType string

const (
	LocalInitialization       LocalMessageType = "initialization"
	LocalHTTPResponse         LocalMessageType = "httpResponse"
	LocalAck                  LocalMessageType = "ack"
	LocalSendRegistrationCode LocalMessageType = "sendRegistrationCode"
	LocalRegisterAccount      LocalMessageType = "registerAccount"
	LocalUnregisterAccount    LocalMessageType = "unregisterAccount"
	LocalRegisteredUsers      LocalMessageType = "registeredUsers"
	LocalFeed                 LocalMessageType = "feed"
	LocalLogs                 LocalMessageType = "logs"
)

// LocalPayload is implemented by every payload a local server may send.
// The concrete type always matches the message discriminant.
type LocalPayload interface {
	LocalType() LocalMessageType
}

// LocalMessage is a decoded and validated inbound envelope.
type LocalMessage struct {
	Type    LocalMessageType
	Payload LocalPayload
}

type Initialization struct {
	MacAddress    string `json:"macAddress" validate:"required,hwaddr"`
	RemoteAuthKey string `json:"remoteAuthKey" validate:"required"`
	Platform      string `json:"platform" validate:"required"`
	Version       string `json:"version" validate:"required"`
	LocalIP       string `json:"localIp,omitempty"`
}

type HTTPSession struct {
	Key    string `json:"key" validate:"required"`
	MaxAge int64  `json:"maxAge"`
}

type HTTPResponse struct {
	RequestID   string                  `json:"requestId" validate:"required"`
	HTTPStatus  int                     `json:"httpStatus" validate:"required,min=100,max=999"`
	HTTPBody    json.RawMessage         `json:"httpBody,omitempty"`
	HTTPSession *HTTPSession            `json:"httpSession,omitempty"`
	HTTPHeaders map[string]HeaderValues `json:"httpHeaders,omitempty"`
}

type Ack struct{}

type SendRegistrationCode struct {
	Email string `json:"email" validate:"required,email"`
}

type RegisterAccount struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

type UnregisterAccount struct {
	Email string `json:"email" validate:"required,email"`
}

type RegisteredUsersQuery struct{}

// FeedType names the application feed a payload belongs to.
type FeedType string

const (
	FeedMinions FeedType = "minions"
	FeedTimings FeedType = "timings"
)

type Feed struct {
	FeedType    FeedType        `json:"feedType" validate:"required,oneof=minions timings"`
	FeedContent json.RawMessage `json:"feedContent" validate:"required"`
}

// Logs carries a base64 encoded log archive. On the wire it is a bare string.
type Logs struct {
	Data string `validate:"required,base64"`
}

func (l *Logs) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &l.Data)
}

func (l Logs) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Data)
}

func (*Initialization) LocalType() LocalMessageType       { return LocalInitialization }
func (*HTTPResponse) LocalType() LocalMessageType         { return LocalHTTPResponse }
func (*Ack) LocalType() LocalMessageType                  { return LocalAck }
func (*SendRegistrationCode) LocalType() LocalMessageType { return LocalSendRegistrationCode }
func (*RegisterAccount) LocalType() LocalMessageType      { return LocalRegisterAccount }
func (*UnregisterAccount) LocalType() LocalMessageType    { return LocalUnregisterAccount }
func (*RegisteredUsersQuery) LocalType() LocalMessageType { return LocalRegisteredUsers }
func (*Feed) LocalType() LocalMessageType                 { return LocalFeed }
func (*Logs) LocalType() LocalMessageType                 { return LocalLogs }

// HeaderValues accepts a header given either as a single string or as a list.
type HeaderValues []string

func (h *HeaderValues) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*h = HeaderValues{one}
		return nil
	}

	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("header value must be a string or a list of strings")
	}
	*h = many
	return nil
}

func (h HeaderValues) MarshalJSON() ([]byte, error) {
	if len(h) == 1 {
		return json.Marshal(h[0])
	}
	return json.Marshal([]string(h))
}

func newLocalPayload(t LocalMessageType) (LocalPayload, bool) {
	switch t {
	case LocalInitialization:
		return &Initialization{}, true
	case LocalHTTPResponse:
		return &HTTPResponse{}, true
	case LocalAck:
		return &Ack{}, true
	case LocalSendRegistrationCode:
		return &SendRegistrationCode{}, true
	case LocalRegisterAccount:
		return &RegisterAccount{}, true
	case LocalUnregisterAccount:
		return &UnregisterAccount{}, true
	case LocalRegisteredUsers:
		return &RegisteredUsersQuery{}, true
	case LocalFeed:
		return &Feed{}, true
	case LocalLogs:
		return &Logs{}, true
	default:
		return nil, false
	}
}

// emptyPayload reports whether the discriminant carries no payload body.
func emptyPayload(t LocalMessageType) bool {
	return t == LocalAck || t == LocalRegisteredUsers
}
