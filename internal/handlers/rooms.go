// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jason-s-yu/quizboard/internal/room"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// HealthHandler reports liveness and the number of live rooms.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"rooms": s.Rooms.Len(),
	})
}

// RoomSummaryHandler serves the board-less summary of a room, for join screens.
func (s *Server) RoomSummaryHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rm, err := s.Rooms.Get(ps.ByName("code"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"ok": false, "error": "room_not_found"})
		return
	}
	writeJSON(w, http.StatusOK, rm.Summary())
}

// RoomQRHandler renders a PNG QR code pointing players at the room's join link.
func (s *Server) RoomQRHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rm, err := s.Rooms.Get(ps.ByName("code"))
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(s.joinURL(r, rm.Code), qrcode.Medium, qrSize)
	if err != nil {
		s.Logger.WithError(err).WithField("room", rm.Code).Warn("qr generation failed")
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// joinURL is the link encoded in invite QR codes. PublicURL wins over the request host.
func (s *Server) joinURL(r *http.Request, code string) string {
	base := strings.TrimRight(s.opts.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?room=" + url.QueryEscape(room.NormalizeCode(code))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
