package httpapi

import (
	"encoding/json"
	"net/http"

	"collectord/pkg/types"
)

// writeJSON encodes v with status. Encoding failures after the header is out
// can only be logged.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		if z := requestEvent(r, LevelError); z != nil {
			z.Err(err).Msg("response encoding failed")
		}
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, types.ErrorResponse{Error: msg, Code: status})
}
