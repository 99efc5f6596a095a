package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/casanet/remote-server/internal/protocol"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status, code int) {
	writeJSON(w, status, protocol.ErrorResponse{ResponseCode: code})
}
