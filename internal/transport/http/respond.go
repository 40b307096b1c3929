package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "namereg/pkg/domain-errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes domain error translation to HTTP responses so every
// handler emits the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	status := dErrors.ToHTTPStatus(err)
	code := string(dErrors.CodeInternal)
	reason := "internal error"
	var de *dErrors.Error
	if errors.As(err, &de) {
		code = string(de.Code)
		reason = de.Message
	}
	writeJSON(w, status, map[string]string{
		"error":  code,
		"reason": reason,
	})
}
