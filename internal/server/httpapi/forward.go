package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/casanet/remote-server/internal/protocol"
	"github.com/casanet/remote-server/internal/server/models"
)

const (
	statusConnected    = "connectionOK"
	statusDisconnected = "localServerDisconnected"
)

// response headers that are owned by this server
var skippedHeaders = map[string]struct{}{
	"content-length":    {},
	"set-cookie":        {},
	"transfer-encoding": {},
	"connection":        {},
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

func (s *Server) remoteStatus(w http.ResponseWriter, r *http.Request) {
	claims, err := s.forwardSession(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, protocol.CodeUnauthorized)
		return
	}

	status := statusDisconnected
	if s.relay.Status(claims.Server) {
		status = statusConnected
	}
	writeJSON(w, http.StatusOK, status)
}

// forward relays any other API call to the caller's local server.
func (s *Server) forward(w http.ResponseWriter, r *http.Request) {
	claims, err := s.forwardSession(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, protocol.CodeUnauthorized)
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	resp := s.relay.SendHTTP(r.Context(), claims.Server, protocol.HTTPRequest{
		HTTPPath:    r.URL.RequestURI(),
		HTTPMethod:  strings.ToUpper(r.Method),
		HTTPBody:    body,
		HTTPSession: claims.Session,
	})
	s.writeForwarded(w, r, claims.Server, resp)
}

// forwardIFTTT relays IFTTT triggers. They carry no session; the target is
// named in the body and the local server checks the trigger key itself.
func (s *Server) forwardIFTTT(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var trigger struct {
		LocalMac string `json:"localMac" validate:"required"`
	}
	if len(body) == 0 || json.Unmarshal(body, &trigger) != nil || s.validate.Struct(trigger) != nil {
		writeError(w, http.StatusUnprocessableEntity, protocol.CodeForwardFailed)
		return
	}

	resp := s.relay.SendHTTP(r.Context(), trigger.LocalMac, protocol.HTTPRequest{
		HTTPPath:   r.URL.RequestURI(),
		HTTPMethod: http.MethodPut,
		HTTPBody:   body,
	})
	s.writeForwarded(w, r, trigger.LocalMac, resp)
}

type loginRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	LocalServerID string `json:"localServerId,omitempty"`
}

type serverChoice struct {
	LocalServerID string `json:"localServerId"`
	DisplayName   string `json:"displayName"`
}

// login picks the local server the user is registered to and forwards the
// credentials to it. A user registered to several servers must name one.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if len(body) == 0 || json.Unmarshal(body, &req) != nil || s.validate.Struct(req) != nil {
		writeError(w, http.StatusUnprocessableEntity, protocol.CodeForwardFailed)
		return
	}

	all, err := s.servers.List(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "failed to list servers", "error", err)
		writeError(w, http.StatusNotImplemented, protocol.CodeForwardFailed)
		return
	}

	var candidates []*models.LocalServer
	for _, srv := range all {
		if srv.HasUser(req.Email) && (req.LocalServerID == "" || srv.PhysicalAddress == req.LocalServerID) {
			candidates = append(candidates, srv)
		}
	}

	switch len(candidates) {
	case 0:
		writeError(w, http.StatusForbidden, protocol.CodeUnauthorized)
		return
	case 1:
	default:
		choices := make([]serverChoice, 0, len(candidates))
		for _, c := range candidates {
			choices = append(choices, serverChoice{LocalServerID: c.PhysicalAddress, DisplayName: c.DisplayName})
		}
		writeJSON(w, http.StatusMultipleChoices, choices)
		return
	}

	mac := candidates[0].PhysicalAddress
	resp := s.relay.SendHTTP(r.Context(), mac, protocol.HTTPRequest{
		HTTPPath:   r.URL.RequestURI(),
		HTTPMethod: http.MethodPost,
		HTTPBody:   body,
	})
	s.writeForwarded(w, r, mac, resp)
}

// readBody returns the request body as JSON, or nil for an empty body.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, protocol.CodeForwardFailed)
		return nil, false
	}
	if len(b) == 0 {
		return nil, true
	}
	if !json.Valid(b) {
		writeError(w, http.StatusUnprocessableEntity, protocol.CodeForwardFailed)
		return nil, false
	}
	return b, true
}

func (s *Server) writeForwarded(w http.ResponseWriter, r *http.Request, mac string, resp *protocol.HTTPResponse) {
	if resp.HTTPStatus < 100 || resp.HTTPStatus > 999 {
		s.logger.Warn(r.Context(), "local server sent invalid status", "mac", mac, "status", resp.HTTPStatus)
		writeError(w, http.StatusNotImplemented, protocol.CodeForwardFailed)
		return
	}

	for name, values := range resp.HTTPHeaders {
		if _, skip := skippedHeaders[strings.ToLower(name)]; skip {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}

	if resp.HTTPSession != nil {
		if err := s.setForwardSession(w, mac, resp.HTTPSession); err != nil {
			s.logger.Error(r.Context(), "failed to issue session", "mac", mac, "error", err)
			writeError(w, http.StatusNotImplemented, protocol.CodeForwardFailed)
			return
		}
	}

	if len(resp.HTTPBody) == 0 {
		w.WriteHeader(resp.HTTPStatus)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.HTTPStatus)
	_, _ = w.Write(resp.HTTPBody)
}
