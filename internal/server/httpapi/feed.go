package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/casanet/remote-server/internal/server/models"
	"github.com/gorilla/mux"
)

const (
	feedBuffer    = 32
	feedKeepAlive = 30 * time.Second
)

// streamFeed pushes the feed of the caller's local server as server-sent
// events until the client goes away.
func (s *Server) streamFeed(w http.ResponseWriter, r *http.Request) {
	claims, err := s.forwardSession(r)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	feedType := mux.Vars(r)["type"]
	events := make(chan models.FeedEvent, feedBuffer)

	unsubscribe := s.relay.LocalFeed().Subscribe(func(ev models.FeedEvent) {
		if ev.Identity != claims.Server || ev.FeedType != feedType {
			return
		}
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(feedKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
		case ev := <-events:
			var buf bytes.Buffer
			if err := json.Compact(&buf, ev.FeedContent); err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", buf.Bytes())
		}
		flusher.Flush()
	}
}
