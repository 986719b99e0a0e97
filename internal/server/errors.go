package server

import (
	"errors"
	"net/http"

	"github.com/dgellow/authbridge/internal/autherr"
	jsonwriter "github.com/dgellow/authbridge/internal/json"
	"github.com/dgellow/authbridge/internal/log"
)

// fail logs err with its kind and answers 500 with an empty body. Client
// mistakes log at warn and everything else at error.
func fail(w http.ResponseWriter, r *http.Request, component, op string, err error) {
	kind := autherr.Kind(err)
	fields := map[string]any{
		"op":         op,
		"kind":       kind,
		"error":      err.Error(),
		"request_id": RequestIDFromContext(r.Context()),
	}

	var pe *autherr.ProviderError
	if errors.As(err, &pe) {
		fields["provider_status"] = pe.StatusCode
		if pe.Payload != "" {
			fields["provider_payload"] = pe.Payload
		}
	}

	switch {
	case errors.Is(err, autherr.ErrMalformedRequest),
		errors.Is(err, autherr.ErrStateMismatch),
		errors.Is(err, autherr.ErrExchangeKeyNotFound),
		errors.Is(err, autherr.ErrUnauthenticated):
		log.LogWarnWithFields(component, "Request rejected", fields)
	default:
		log.LogErrorWithFields(component, "Request failed", fields)
	}

	jsonwriter.WriteInternalServerError(w)
}
