package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

var errSample = Precondition("sample_failed", "sample failed")

func TestError_IsMatchesOnCode(t *testing.T) {
	withDetails := errSample.WithDetails(map[string]any{"missing_items": []int{2}})

	require.True(t, errors.Is(withDetails, errSample))
	require.True(t, errors.Is(fmt.Errorf("wrapped: %w", withDetails), errSample))
	require.False(t, errors.Is(withDetails, Precondition("other", "other")))
	require.Nil(t, errSample.Details, "WithDetails must not mutate the sentinel")
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindPrecondition, KindOf(errSample))
	require.Equal(t, KindAuthorization, KindOf(fmt.Errorf("x: %w", Authorization("a", "a"))))
	require.Equal(t, KindInfrastructure, KindOf(errors.New("boom")))
}

func TestWriteServiceError_MapsKindsToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{Authorization("forbidden_role", "no"), http.StatusForbidden, "forbidden_role"},
		{errSample, http.StatusConflict, "sample_failed"},
		{Validation("bad_progress", "bad"), http.StatusUnprocessableEntity, "bad_progress"},
		{NotFound("vote_not_found", "missing"), http.StatusNotFound, "vote_not_found"},
		{errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)

		WriteServiceError(rec, req, tc.err, "Failed")

		require.Equal(t, tc.status, rec.Code)
		var env ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.Equal(t, tc.code, env.Error.Code)
	}
}

func TestWriteServiceError_IncludesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)

	WriteServiceError(rec, req, errSample.WithDetails(map[string]any{"missing_items": []int{1, 3}}), "Failed")

	var env ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, []any{float64(1), float64(3)}, env.Error.Details["missing_items"])
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}
