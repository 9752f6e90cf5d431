package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "wellness.identity"}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "student-1",
		"iss":    testConfig.Issuer,
		"role":   "student",
		"scopes": []string{ScopeActivitiesRead, ScopeActivitiesWrite},
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func TestParseValidToken(t *testing.T) {
	claims, err := Parse(signToken(t, baseClaims(), testConfig.Secret), testConfig)
	require.NoError(t, err)
	require.Equal(t, "student-1", claims.Subject)
	require.Equal(t, RoleStudent, claims.Role)
	require.True(t, claims.HasScope(ScopeActivitiesRead))
	require.True(t, claims.HasScope(ScopeActivitiesWrite))
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestParseSpaceSeparatedScopesAndDefaultRole(t *testing.T) {
	c := baseClaims()
	delete(c, "role")
	c["scopes"] = "activities:read  extra"

	claims, err := Parse(signToken(t, c, testConfig.Secret), testConfig)
	require.NoError(t, err)
	require.Equal(t, RoleStudent, claims.Role)
	require.True(t, claims.HasScope(ScopeActivitiesRead))
	require.False(t, claims.HasScope(ScopeActivitiesWrite))
}

func TestParseRejects(t *testing.T) {
	cases := map[string]func() string{
		"empty": func() string { return "" },
		"wrong secret": func() string {
			return signToken(t, baseClaims(), "other-secret")
		},
		"wrong issuer": func() string {
			c := baseClaims()
			c["iss"] = "someone-else"
			return signToken(t, c, testConfig.Secret)
		},
		"expired": func() string {
			c := baseClaims()
			c["exp"] = time.Now().Add(-time.Minute).Unix()
			return signToken(t, c, testConfig.Secret)
		},
		"missing exp": func() string {
			c := baseClaims()
			delete(c, "exp")
			return signToken(t, c, testConfig.Secret)
		},
		"missing subject": func() string {
			c := baseClaims()
			delete(c, "sub")
			return signToken(t, c, testConfig.Secret)
		},
		"wrong algorithm": func() string {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, baseClaims()).SignedString([]byte(testConfig.Secret))
			require.NoError(t, err)
			return token
		},
		"numeric scopes": func() string {
			c := baseClaims()
			c["scopes"] = 7
			return signToken(t, c, testConfig.Secret)
		},
		"unknown role": func() string {
			c := baseClaims()
			c["role"] = "superuser"
			return signToken(t, c, testConfig.Secret)
		},
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token(), testConfig)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrMissingToken))
		})
	}
}

func TestCanRead(t *testing.T) {
	student := &Claims{Subject: "student-1", Role: RoleStudent}
	counselor := &Claims{Subject: "counselor-1", Role: RoleCounselor}
	admin := &Claims{Subject: "admin-1", Role: RoleAdmin}

	require.True(t, student.CanRead("student-1"))
	require.False(t, student.CanRead("student-2"))
	require.True(t, counselor.CanRead("student-2"))
	require.True(t, admin.CanRead("student-2"))

	var none *Claims
	require.False(t, none.CanRead("student-1"))
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig).Wrap(next)

	t.Run("health skips auth", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/activities", nil))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		require.JSONEq(t, `{"success":false,"type":"unauthorized","detail":"`+ErrMissingToken.Error()+`"}`, rr.Body.String())
	})

	t.Run("extra open path", func(t *testing.T) {
		rr := httptest.NewRecorder()
		NewMiddleware(testConfig, "/v1/catalog").Wrap(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/catalog", nil))
		require.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("preflight skips auth", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/activities", nil))
		require.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("lowercase scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/activities", nil)
		req.Header.Set("Authorization", "bearer "+signToken(t, baseClaims(), testConfig.Secret))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("non bearer scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/activities", nil)
		req.Header.Set("Authorization", "Basic abc")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.Equal(t, `Bearer realm="wellness"`, rr.Header().Get("WWW-Authenticate"))
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/activities", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, baseClaims(), testConfig.Secret))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusNoContent, rr.Code)
		require.NotNil(t, seen)
		require.Equal(t, "student-1", seen.Subject)
	})
}
