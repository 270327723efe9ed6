package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
)

func TestRespondServiceErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not_found", fmt.Errorf("chat x: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"unauthorized", fmt.Errorf("chat x: %w", apperrors.ErrUnauthorized), http.StatusUnauthorized, "unauthorized"},
		{"invalid_argument", fmt.Errorf("bad ext: %w", apperrors.ErrInvalidArgument), http.StatusBadRequest, "invalid_argument"},
		{"internal", fmt.Errorf("connection refused"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			RespondServiceError(c, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var envelope ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("bad error body: %v", err)
			}
			if envelope.Error.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", envelope.Error.Code, tc.wantCode)
			}
			if envelope.Error.Message == "" {
				t.Fatalf("message must carry the error text")
			}
		})
	}
}
