package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

// writeError writes a structured JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// parseSince reads an RFC3339 since parameter, defaulting to now minus def.
func parseSince(r *http.Request, now time.Time, def time.Duration) (time.Time, bool) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return now.Add(-def), true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseLimit extracts limit from query params, clamped to [1, ceil].
func parseLimit(r *http.Request, def, ceil int) int {
	n := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			n = p
		}
	}
	if n > ceil {
		n = ceil
	}
	return n
}
