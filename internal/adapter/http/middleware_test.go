package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBearerAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validToken := "test-token-123"

	tests := []struct {
		name           string
		header         string
		handlerCalled  bool
		expectedStatus int
		expectedErrMsg string
	}{
		{
			name:           "Valid Token",
			header:         "Bearer test-token-123",
			handlerCalled:  true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Invalid Token",
			header:         "Bearer wrong-token",
			handlerCalled:  false,
			expectedStatus: http.StatusUnauthorized,
			expectedErrMsg: "invalid token",
		},
		{
			name:           "Missing Header",
			header:         "",
			handlerCalled:  false,
			expectedStatus: http.StatusUnauthorized,
			expectedErrMsg: "missing authorization header",
		},
		{
			name:           "Not A Bearer Token",
			header:         "Basic dXNlcjpwYXNz",
			handlerCalled:  false,
			expectedStatus: http.StatusUnauthorized,
			expectedErrMsg: "bearer token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false

			router := gin.New()
			router.Use(BearerAuth(validToken))
			router.GET("/probe", func(c *gin.Context) {
				handlerCalled = true
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})

			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.handlerCalled, handlerCalled, "handler called status mismatch")
			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedErrMsg != "" {
				assert.Contains(t, rec.Body.String(), tt.expectedErrMsg)
			}
		})
	}
}
