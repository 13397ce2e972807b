package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})
	return r
}

func get(r http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for k, v := range header {
		for _, val := range v {
			req.Header.Add(k, val)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestJWTAuth(t *testing.T) {
	valid, err := GenerateJWT("user-1", "u@example.com", testSecret, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateJWT("user-1", "", testSecret, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := GenerateJWT("user-1", "", "other-secret", time.Hour)
	require.NoError(t, err)
	noUser, err := GenerateJWT("", "", testSecret, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     http.Header
		wantStatus int
		wantBody   string
	}{
		{"valid token", bearer(valid), http.StatusOK, "user-1"},
		{"missing header", nil, http.StatusUnauthorized, ""},
		{"not bearer", http.Header{"Authorization": {"Basic abc"}}, http.StatusUnauthorized, ""},
		{"expired", bearer(expired), http.StatusUnauthorized, ""},
		{"wrong key", bearer(wrongKey), http.StatusUnauthorized, ""},
		{"no user", bearer(noUser), http.StatusUnauthorized, ""},
		{"garbage", bearer("not.a.jwt"), http.StatusUnauthorized, ""},
	}

	r := protectedRouter(JWTAuth(testSecret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.header)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"unauthorized"`)
			}
		})
	}
}

func TestParseJWT_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, JWTClaims{UserID: "user-1"})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseJWT(s, testSecret)
	assert.Error(t, err)
}

func TestParseJWT_FallsBackToSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"},
	})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err := ParseJWT(s, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.UserID)
}

func TestRateLimit(t *testing.T) {
	token, err := GenerateJWT("user-1", "", testSecret, time.Hour)
	require.NoError(t, err)
	other, err := GenerateJWT("user-2", "", testSecret, time.Hour)
	require.NoError(t, err)

	rl := NewRateLimiter(2)
	frozen := time.Now()
	rl.now = func() time.Time { return frozen }
	r := protectedRouter(JWTAuth(testSecret), rl.RateLimit())

	w := get(r, bearer(token))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, get(r, bearer(token)).Code)

	w = get(r, bearer(token))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, get(r, bearer(other)).Code, "buckets are per user")

	// Half an hour refills one of two tokens.
	frozen = frozen.Add(30 * time.Minute)
	assert.Equal(t, http.StatusOK, get(r, bearer(token)).Code)
}

func TestRateLimit_Cleanup(t *testing.T) {
	rl := NewRateLimiter(5)
	start := time.Now()
	rl.now = func() time.Time { return start }
	rl.allow("a")

	rl.now = func() time.Time { return start.Add(2 * time.Hour) }
	rl.allow("b")
	rl.Cleanup(time.Hour)

	assert.NotContains(t, rl.limiters, "a")
	assert.Contains(t, rl.limiters, "b")
}

func TestRateLimit_Disabled(t *testing.T) {
	token, err := GenerateJWT("user-1", "", testSecret, time.Hour)
	require.NoError(t, err)
	r := protectedRouter(JWTAuth(testSecret), NewRateLimiter(0).RateLimit())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, bearer(token)).Code)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	r := protectedRouter(RequestLogger(logger))

	w := get(r, http.Header{RequestIDHeader: {"req-123"}})
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Contains(t, buf.String(), `"status":200`)

	w = get(r, nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	r := protectedRouter(CORS([]string{"https://app.example"}))

	w := get(r, http.Header{"Origin": {"https://app.example"}})
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, http.Header{"Origin": {"https://evil.example"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyOriginsUseDefault(t *testing.T) {
	var r *gin.Engine
	require.NotPanics(t, func() { r = protectedRouter(CORS(nil)) })

	w := get(r, http.Header{"Origin": {DefaultOrigins[0]}})
	assert.Equal(t, DefaultOrigins[0], w.Header().Get("Access-Control-Allow-Origin"))
}
