package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/cloudagents/codebuilder/api"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes an error response with the appropriate HTTP status code.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if sc, ok := err.(api.StatusCoder); ok {
		status = sc.StatusCode()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Message: err.Error()})
}

// ReadJSON reads and decodes a JSON request body. An empty body decodes
// into the zero value.
func ReadJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}
