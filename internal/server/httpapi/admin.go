package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/protocol"
	"github.com/casanet/remote-server/internal/server/models"
	"github.com/gorilla/mux"
)

type serverView struct {
	MacAddress        string     `json:"macAddress"`
	DisplayName       string     `json:"displayName"`
	ContactMail       string     `json:"contactMail"`
	Platform          string     `json:"platform"`
	Version           string     `json:"version"`
	LocalIP           string     `json:"localIp"`
	Comment           string     `json:"comment"`
	ValidUsers        []string   `json:"validUsers"`
	LastConnection    *time.Time `json:"lastConnection,omitempty"`
	LastDisconnection *time.Time `json:"lastDisconnection,omitempty"`
	ConnectionStatus  bool       `json:"connectionStatus"`
}

func newServerView(s models.ServerStatus) serverView {
	users := s.ValidUsers
	if users == nil {
		users = []string{}
	}
	return serverView{
		MacAddress:        s.PhysicalAddress,
		DisplayName:       s.DisplayName,
		ContactMail:       s.ContactMail,
		Platform:          s.Platform,
		Version:           s.Version,
		LocalIP:           s.LocalIP,
		Comment:           s.Comment,
		ValidUsers:        users,
		LastConnection:    s.LastConnection,
		LastDisconnection: s.LastDisconnection,
		ConnectionStatus:  s.Connected,
	}
}

type serverInput struct {
	MacAddress  string   `json:"macAddress" validate:"required,max=17"`
	DisplayName string   `json:"displayName" validate:"max=30"`
	ContactMail string   `json:"contactMail" validate:"omitempty,email"`
	Comment     string   `json:"comment"`
	ValidUsers  []string `json:"validUsers" validate:"dive,email"`
}

func (in serverInput) model() *models.LocalServer {
	return &models.LocalServer{
		PhysicalAddress: in.MacAddress,
		DisplayName:     in.DisplayName,
		ContactMail:     in.ContactMail,
		Comment:         in.Comment,
		ValidUsers:      in.ValidUsers,
	}
}

func (s *Server) listServers(w http.ResponseWriter, r *http.Request) {
	list, err := s.servers.List(r.Context())
	if err != nil {
		s.internalError(w, r, "failed to list servers", err)
		return
	}

	out := make([]serverView, 0, len(list))
	for _, srv := range list {
		out = append(out, newServerView(models.ServerStatus{LocalServer: *srv, Connected: s.relay.Status(srv.PhysicalAddress)}))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createServer(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeServer(w, r)
	if !ok {
		return
	}

	if err := s.servers.Create(r.Context(), in.model()); err != nil {
		s.internalError(w, r, "failed to create server", err)
		return
	}

	s.logger.Info(r.Context(), "server created", "mac", in.MacAddress, "admin", adminEmail(r.Context()))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) updateServer(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeServer(w, r)
	if !ok {
		return
	}

	if err := s.servers.Update(r.Context(), in.model()); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, protocol.CodeForwardFailed)
			return
		}
		s.internalError(w, r, "failed to update server", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteServer(w http.ResponseWriter, r *http.Request) {
	mac := mux.Vars(r)["id"]

	if err := s.servers.Delete(r.Context(), mac); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, protocol.CodeForwardFailed)
			return
		}
		s.internalError(w, r, "failed to delete server", err)
		return
	}

	s.relay.Disconnect(r.Context(), mac)
	s.logger.Info(r.Context(), "server deleted", "mac", mac, "admin", adminEmail(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// generateKey issues a new auth key. The current channel, authenticated
// with the old key, is dropped.
func (s *Server) generateKey(w http.ResponseWriter, r *http.Request) {
	mac := mux.Vars(r)["id"]

	key, err := s.keys.GenerateKey(r.Context(), mac)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, protocol.CodeForwardFailed)
			return
		}
		s.internalError(w, r, "failed to generate key", err)
		return
	}

	s.relay.Disconnect(r.Context(), mac)
	s.logger.Info(r.Context(), "server key regenerated", "mac", mac, "admin", adminEmail(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}

func (s *Server) fetchLogs(w http.ResponseWriter, r *http.Request) {
	mac := mux.Vars(r)["id"]
	archive := r.URL.Query().Get("archive") == "true"

	if archive && s.archive == nil {
		writeError(w, http.StatusNotImplemented, protocol.CodeForwardFailed)
		return
	}

	encoded, err := s.relay.FetchLogs(r.Context(), mac)
	if err != nil {
		var resp *protocol.ErrorResponse
		switch {
		case errors.Is(err, common.ErrNotConnected):
			writeError(w, http.StatusNotFound, protocol.CodeNoConnection)
		case errors.As(err, &resp):
			writeJSON(w, http.StatusNotImplemented, resp)
		default:
			s.internalError(w, r, "failed to fetch logs", err)
		}
		return
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		s.internalError(w, r, "local server sent undecodable logs", err)
		return
	}

	if archive {
		url, err := s.archive.Store(r.Context(), mac, data)
		if err != nil {
			s.internalError(w, r, "failed to archive logs", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-logs.zip"`, mac))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) decodeServer(w http.ResponseWriter, r *http.Request) (serverInput, bool) {
	var in serverInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusUnprocessableEntity, protocol.CodeForwardFailed)
		return in, false
	}
	if r.Method == http.MethodPut {
		in.MacAddress = mux.Vars(r)["id"]
	}
	if err := s.validate.Struct(in); err != nil {
		writeError(w, http.StatusUnprocessableEntity, protocol.CodeForwardFailed)
		return in, false
	}
	return in, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(r.Context(), msg, "error", err)
	writeError(w, http.StatusNotImplemented, protocol.CodeForwardFailed)
}
