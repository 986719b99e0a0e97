package json

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/dgellow/authbridge/internal/log"
)

// maxRequestBody caps JSON request bodies; every body we accept is a single
// short field
const maxRequestBody = 64 << 10

// WriteResponse writes a JSON response with the given status code
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteEmpty writes a bare status with no body. Failures on the auth
// endpoints use it so nothing about the cause reaches the browser.
func WriteEmpty(w http.ResponseWriter, statusCode int) {
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(statusCode)
}

// WriteInternalServerError writes an empty 500
func WriteInternalServerError(w http.ResponseWriter) {
	WriteEmpty(w, http.StatusInternalServerError)
}

// DecodeObject decodes a JSON object body into a generic map. An empty body
// decodes to an empty map so callers report a missing field rather than a
// syntax error.
func DecodeObject(r io.Reader) (map[string]any, error) {
	var body map[string]any
	err := json.NewDecoder(io.LimitReader(r, maxRequestBody)).Decode(&body)
	if err == io.EOF {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}
