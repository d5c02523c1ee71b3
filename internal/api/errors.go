package api

import (
	"encoding/json"
	"net/http"

	"github.com/NicolasKol/reforge/internal/stageerr"
)

// errorResponse is the JSON error body of every failed request.
type errorResponse struct {
	Error struct {
		Code    string      `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a structured error response.
func WriteError(w http.ResponseWriter, status int, code stageerr.Code, message string) {
	var resp errorResponse
	resp.Error.Code = string(code)
	resp.Error.Message = message
	WriteJSON(w, resp, status)
}

// WriteStageError maps a stage error to an HTTP response.
func WriteStageError(w http.ResponseWriter, err error) {
	code := stageerr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case stageerr.InputUnreadable, stageerr.InputMalformed:
		status = http.StatusNotFound
	case stageerr.SnapshotInvalid:
		status = http.StatusBadRequest
	case stageerr.ArtifactDirConflict:
		status = http.StatusConflict
	}
	WriteError(w, status, code, err.Error())
}

// InternalError writes a 500 response.
func InternalError(w http.ResponseWriter, message string, err error) {
	msg := message
	if err != nil {
		msg = message + ": " + err.Error()
	}
	WriteError(w, http.StatusInternalServerError, stageerr.Internal, msg)
}
