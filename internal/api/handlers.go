package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/guoyu-zhang/say-like-a-native/internal/search"
	"github.com/guoyu-zhang/say-like-a-native/internal/telemetry"
	"github.com/guoyu-zhang/say-like-a-native/internal/waitlist"
	"github.com/guoyu-zhang/say-like-a-native/pkg/version"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response_encode_failed", slog.String("error", err.Error()))
	}
}

type detailBody struct {
	Detail string `json:"detail"`
}

func detail(msg string) detailBody {
	return detailBody{Detail: msg}
}

// intParam reads a positive integer query parameter. Missing or malformed
// values fall back to def; the engine clamps the rest.
func intParam(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// boolParam accepts the usual spellings of true and false.
func boolParam(r *http.Request, name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hey there"})
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Segments *int   `json:"segments,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: version.Short()})
		return
	}
	n, err := s.deps.Store.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Version: version.Short(), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: version.Short(), Segments: &n})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.Engine.Config()
	q := r.URL.Query().Get("q")
	resp := s.deps.Engine.Search(r.Context(), q, intParam(r, "size", cfg.DefaultSize))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.Engine.Config()
	q := r.URL.Query().Get("q")
	resp := s.deps.Engine.Autocomplete(r.Context(), q, intParam(r, "size", cfg.AutocompleteDefaultSize))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVideoSearch(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.Engine.Config()
	query := r.URL.Query()
	resp := s.deps.Engine.VideoSearch(r.Context(),
		query.Get("video_id"),
		query.Get("q"),
		intParam(r, "size", cfg.DefaultSize),
		boolParam(r, "single_result", false))

	status := http.StatusOK
	if resp.Error == search.MissingVideoIDMessage {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

type waitlistRequest struct {
	Email string `json:"email"`
}

type waitlistAddResponse struct {
	Message           string `json:"message"`
	Email             string `json:"email"`
	AlreadyRegistered bool   `json:"already_registered"`
}

type waitlistListResponse struct {
	Count   int              `json:"count"`
	Entries []waitlist.Entry `json:"entries"`
}

func (s *Server) handleWaitlistAdd(w http.ResponseWriter, r *http.Request) {
	var req waitlistRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, detail(waitlist.ErrInvalidEmail.Error()))
		return
	}

	entry, added, err := s.deps.Waitlist.Add(r.Context(), req.Email)
	switch {
	case errors.Is(err, waitlist.ErrInvalidEmail):
		writeJSON(w, http.StatusBadRequest, detail(err.Error()))
		return
	case err != nil:
		slog.Error("waitlist_add_failed",
			slog.String("error", err.Error()),
			slog.String("request_id", RequestID(r.Context())))
		writeJSON(w, http.StatusInternalServerError, detail("failed to add to waitlist"))
		return
	}

	resp := waitlistAddResponse{Message: "Successfully added to waitlist", Email: entry.Email}
	if !added {
		resp.Message = "Email already registered"
		resp.AlreadyRegistered = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWaitlistList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Waitlist.List(r.Context())
	if err != nil {
		slog.Error("waitlist_list_failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, detail("failed to read waitlist"))
		return
	}
	if entries == nil {
		entries = []waitlist.Entry{}
	}
	writeJSON(w, http.StatusOK, waitlistListResponse{Count: len(entries), Entries: entries})
}

type statsResponse struct {
	*telemetry.Snapshot
	ZeroResultRate float64 `json:"zero_result_rate"`
	RepeatRate     float64 `json:"repeat_rate"`
	Summary        string  `json:"summary"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Metrics == nil {
		writeJSON(w, http.StatusNotFound, detail("telemetry disabled"))
		return
	}
	snap := s.deps.Metrics.Snapshot()
	writeJSON(w, http.StatusOK, statsResponse{
		Snapshot:       snap,
		ZeroResultRate: snap.ZeroResultRate(),
		RepeatRate:     snap.RepeatRate(),
		Summary:        snap.Summary(),
	})
}
