package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgellow/authbridge/internal/autherr"
	"github.com/dgellow/authbridge/internal/identity"
	"github.com/dgellow/authbridge/internal/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, raw string) (*identity.IDToken, error) {
	args := m.Called(ctx, raw)
	idt, _ := args.Get(0).(*identity.IDToken)
	return idt, args.Error(1)
}

func TestRegistHandler(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		verifyErr  error
		body       string
		wantStatus int
		wantRegion any
	}{
		{
			name:       "string region",
			authHeader: "Bearer good",
			body:       `{"region":"us-east"}`,
			wantStatus: http.StatusOK,
			wantRegion: "us-east",
		},
		{
			name:       "object region",
			authHeader: "Bearer good",
			body:       `{"region":{"country":"JP"}}`,
			wantStatus: http.StatusOK,
			wantRegion: map[string]any{"country": "JP"},
		},
		{
			name:       "missing authorization",
			body:       `{"region":"us-east"}`,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "invalid token",
			authHeader: "Bearer bad",
			verifyErr:  errors.Join(autherr.ErrUnauthenticated, errors.New("expired")),
			body:       `{"region":"us-east"}`,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "missing region",
			authHeader: "Bearer good",
			body:       `{}`,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "null region",
			authHeader: "Bearer good",
			body:       `{"region":null}`,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "not json",
			authHeader: "Bearer good",
			body:       `region=us`,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &mockVerifier{}
			if tt.authHeader != "" {
				if tt.verifyErr != nil {
					v.On("Verify", mock.Anything, tt.authHeader).Return(nil, tt.verifyErr)
				} else {
					v.On("Verify", mock.Anything, tt.authHeader).Return(&identity.IDToken{UID: "amazon:u1"}, nil)
				}
			}
			store := region.NewMemoryStore()
			h := NewRegionHandlers(v, store)

			req := httptest.NewRequest(http.MethodPost, "/region/regist", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			h.RegistHandler(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, rec.Body.String())

			got, found, err := store.Get(context.Background(), "amazon:u1")
			require.NoError(t, err)
			if tt.wantStatus != http.StatusOK {
				assert.False(t, found)
				return
			}
			assert.True(t, found)
			assert.Equal(t, tt.wantRegion, got)
		})
	}
}

func TestRegistHandler_NoVerifyWithoutHeader(t *testing.T) {
	v := &mockVerifier{}
	h := NewRegionHandlers(v, region.NewMemoryStore())

	rec := httptest.NewRecorder()
	h.RegistHandler(rec, httptest.NewRequest(http.MethodPost, "/region/regist", strings.NewReader(`{"region":"x"}`)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	v.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}
