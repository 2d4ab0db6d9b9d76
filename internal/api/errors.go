package api

import (
	"encoding/json"
	"net/http"

	gethlog "github.com/ethereum/go-ethereum/log"
)

// envelope is the stable error response shape: never leak a driver or
// pgx error string to the client.
type envelope struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, message string) {
	status := "fail"
	if code >= 500 {
		status = "error"
	}
	writeJSON(w, code, envelope{Status: status, StatusCode: code, Message: message})
}

func badRequest(w http.ResponseWriter, message string) { writeError(w, http.StatusBadRequest, message) }

func notFound(w http.ResponseWriter, message string) { writeError(w, http.StatusNotFound, message) }

func internalError(w http.ResponseWriter, cause error) {
	gethlog.Error("api: internal error", "err", cause)
	writeError(w, http.StatusInternalServerError, "A database error occurred")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		gethlog.Error("api: encode response", "err", err)
	}
}
