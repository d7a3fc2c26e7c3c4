package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/domain"
	"fleetops/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(auth *middleware.Authenticator, roles ...domain.Role) *gin.Engine {
	r := gin.New()
	r.Use(auth.RequireAuth())
	if len(roles) > 0 {
		r.Use(middleware.RequireRole(roles...))
	}
	r.GET("/me", func(c *gin.Context) {
		id, _ := middleware.CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "role": id.Role})
	})
	return r
}

func get(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth_ValidToken(t *testing.T) {
	auth := middleware.NewAuthenticator("secret")
	token, err := auth.GenerateToken("driver-1", domain.RoleDriver, time.Hour)
	require.NoError(t, err)

	rec := get(newAuthRouter(auth), token)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"driver-1","role":"driver"}`, rec.Body.String())
}

func TestRequireAuth_Rejects(t *testing.T) {
	auth := middleware.NewAuthenticator("secret")
	other := middleware.NewAuthenticator("other-secret")

	wrongKey, err := other.GenerateToken("driver-1", domain.RoleDriver, time.Hour)
	require.NoError(t, err)
	expired, err := auth.GenerateToken("driver-1", domain.RoleDriver, -time.Minute)
	require.NoError(t, err)
	badRole, err := auth.GenerateToken("driver-1", domain.Role("admin"), time.Hour)
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x", "role": "driver"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	r := newAuthRouter(auth)
	for name, token := range map[string]string{
		"missing":   "",
		"garbage":   "not-a-token",
		"wrong key": wrongKey,
		"expired":   expired,
		"bad role":  badRole,
		"alg none":  noneAlg,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, get(r, token).Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	auth := middleware.NewAuthenticator("secret")
	r := newAuthRouter(auth, domain.RoleFleetManager)

	driver, err := auth.GenerateToken("driver-1", domain.RoleDriver, time.Hour)
	require.NoError(t, err)
	manager, err := auth.GenerateToken("manager-1", domain.RoleFleetManager, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, get(r, driver).Code)
	assert.Equal(t, http.StatusOK, get(r, manager).Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(middleware.CORSMiddleware([]string{"http://localhost:5173"}))
	r.GET("/trips", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/trips", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/trips", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/trips", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})
}

func TestNewRelicAttributes_NoTransactionIsNoop(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		middleware.SetIdentity(c, domain.Identity{UserID: "u-1", Role: domain.RoleDriver})
		c.Next()
	})
	r.Use(middleware.NewRelicAttributes())
	r.GET("/trips/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trips/t-1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
