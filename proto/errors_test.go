package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebRPCError_Is(t *testing.T) {
	err := ErrUnknownRequest.WithCausef("request %q is gone", "R1")
	assert.True(t, errors.Is(err, ErrUnknownRequest))
	assert.False(t, errors.Is(err, ErrDuplicateIdentity))
}

func TestWebRPCError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := ErrUpstreamError.WithCause(cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "boom")
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedName   string
	}{
		{
			name:           "unknown request is a client error",
			err:            ErrUnknownRequest,
			expectedStatus: http.StatusNotFound,
			expectedName:   "UnknownRequest",
		},
		{
			name:           "ownership conflict is a client error",
			err:            ErrRequestOwnershipConflict,
			expectedStatus: http.StatusConflict,
			expectedName:   "RequestOwnershipConflict",
		},
		{
			name:           "upstream error is dependency-attributable",
			err:            ErrUpstreamError.WithCausef("status 500"),
			expectedStatus: http.StatusBadGateway,
			expectedName:   "UpstreamError",
		},
		{
			name:           "onboarding failure is dependency-attributable",
			err:            ErrOnboardingFailed,
			expectedStatus: http.StatusBadGateway,
			expectedName:   "OnboardingFailed",
		},
		{
			name:           "plain error maps to internal error",
			err:            fmt.Errorf("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedName:   "InternalError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondWithError(rec, tt.err)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body WebRPCError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedName, body.Name)
		})
	}
}
