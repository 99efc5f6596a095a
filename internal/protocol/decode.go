package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ErrMalformed is returned for envelopes that fail decoding or validation.
var ErrMalformed = errors.New("malformed message")

var hwaddrRe = regexp.MustCompile(`^([0-9A-Fa-f]{12}|([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2})$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("hwaddr", func(fl validator.FieldLevel) bool {
		return hwaddrRe.MatchString(fl.Field().String())
	})
	return v
}

// Decode parses an inbound envelope
//
//	{"localMessagesType": "<type>", "message": {"<type>": <payload>}}
//
// and validates the payload for its discriminant.
func Decode(data []byte) (*LocalMessage, error) {
	var env struct {
		Type    LocalMessageType           `json:"localMessagesType"`
		Message map[string]json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	payload, ok := newLocalPayload(env.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}

	if !emptyPayload(env.Type) {
		raw, ok := env.Message[string(env.Type)]
		if !ok || len(raw) == 0 {
			return nil, fmt.Errorf("%w: missing %s payload", ErrMalformed, env.Type)
		}
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := validate.Struct(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	return &LocalMessage{Type: env.Type, Payload: payload}, nil
}

// EncodeLocal builds an inbound envelope. Local server simulators and tests
// use it to speak the protocol.
func EncodeLocal(p LocalPayload) ([]byte, error) {
	msg := map[string]any{}
	if !emptyPayload(p.LocalType()) {
		msg[string(p.LocalType())] = p
	}
	return json.Marshal(struct {
		Type    LocalMessageType `json:"localMessagesType"`
		Message map[string]any   `json:"message"`
	}{Type: p.LocalType(), Message: msg})
}
