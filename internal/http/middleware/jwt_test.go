package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"portfolio_backend/internal/logger"
	"portfolio_backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/me", JWT(), func(c *gin.Context) {
		logger.WithContext(c.Request.Context()).Info("inside handler")
		c.String(http.StatusOK, c.GetString(UserIDKey))
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	service.InitJWT("middleware-test-secret")
	r := newAuthRouter()

	token, err := service.GenerateJWT("user-42")
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		status int
	}{
		"valid":     {"Bearer " + token, http.StatusOK},
		"missing":   {"", http.StatusUnauthorized},
		"no scheme": {token, http.StatusUnauthorized},
		"garbage":   {"Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "user-42", w.Body.String())
			}
		})
	}
}

func TestRequestLoggerPropagatesIDs(t *testing.T) {
	service.InitJWT("middleware-test-secret")
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.Init("debug", true)
	t.Cleanup(func() {
		logger.SetOutput(os.Stdout)
		logger.Init("info", false)
	})

	token, err := service.GenerateJWT("user-7")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(RequestIDHeader, "req-abc")
	newAuthRouter().ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get(RequestIDHeader))
	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-abc"`)
	assert.Contains(t, out, `"user_id":"user-7"`)
	assert.Contains(t, out, `"route":"/me"`)
}
