package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joescharf/issueboard/internal/models"
)

// streamIssues sends one "snapshot" event with the filtered collection right
// away and again after every change, until the client goes away.
func (s *Server) streamIssues(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Latest wins: a slow client skips intermediate snapshots.
	updates := make(chan []*models.Issue, 1)
	render := func(issues []*models.Issue) {
		for {
			select {
			case updates <- issues:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}

	q := r.URL.Query()
	view, err := s.board.Watch(principalFrom(r.Context()), q.Get("status"), q.Get("priority"), render)
	if err != nil {
		writeBoardError(w, r, err)
		return
	}
	defer view.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	slog.Debug("issue stream opened", "uid", principalFrom(r.Context()).UID)
	defer slog.Debug("issue stream closed", "uid", principalFrom(r.Context()).UID)

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case issues := <-updates:
			if err := writeEvent(w, "snapshot", listResponse{Issues: issues, Count: len(issues)}); err != nil {
				slog.Debug("write issue stream", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
