package server

import (
	"context"
	"net/http"

	"github.com/dgellow/authbridge/internal/autherr"
	"github.com/dgellow/authbridge/internal/identity"
	jsonwriter "github.com/dgellow/authbridge/internal/json"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/region"
)

// IDTokenVerifier verifies identity tokens presented by signed-in clients
type IDTokenVerifier interface {
	Verify(ctx context.Context, raw string) (*identity.IDToken, error)
}

// RegionHandlers serves region registration for signed-in users
type RegionHandlers struct {
	verifier IDTokenVerifier
	store    region.Store
}

// NewRegionHandlers creates new region handlers
func NewRegionHandlers(verifier IDTokenVerifier, store region.Store) *RegionHandlers {
	return &RegionHandlers{verifier: verifier, store: store}
}

// RegistHandler saves the caller's region. The caller is identified by the
// ID token in the Authorization header.
func (h *RegionHandlers) RegistHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := r.Header.Get("Authorization")
	if raw == "" {
		fail(w, r, "region", "regist", autherr.ErrUnauthenticated)
		return
	}
	idt, err := h.verifier.Verify(ctx, raw)
	if err != nil {
		fail(w, r, "region", "regist", err)
		return
	}

	body, err := jsonwriter.DecodeObject(r.Body)
	if err != nil {
		fail(w, r, "region", "regist", autherr.Malformed("invalid JSON body: %v", err))
		return
	}
	value, ok := body["region"]
	if !ok || value == nil {
		fail(w, r, "region", "regist", autherr.Malformed("region is required"))
		return
	}

	if err := h.store.Save(ctx, idt.UID, value); err != nil {
		fail(w, r, "region", "regist", err)
		return
	}

	log.LogInfoWithFields("region", "Region registered", map[string]any{
		"uid":        idt.UID,
		"request_id": RequestIDFromContext(ctx),
	})
	jsonwriter.WriteEmpty(w, http.StatusOK)
}
