package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("user=" + UserID(r.Context())))
	})
}

func serve(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOptional(t *testing.T) {
	v := NewHMACVerifier(testSecret)
	h := Optional(v)(echoUser())

	rec := serve(h, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user=", rec.Body.String())

	token, err := IssueHMACToken(testSecret, "user-1", nil, time.Hour)
	require.NoError(t, err)
	rec = serve(h, "Bearer "+token)
	assert.Equal(t, "user=user-1", rec.Body.String())

	rec = serve(h, "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequired(t *testing.T) {
	h := Required(NewHMACVerifier(testSecret))(echoUser())

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Basic abc").Code)

	expired, err := IssueHMACToken(testSecret, "user-1", nil, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer "+expired).Code)

	forged, err := IssueHMACToken("other-secret", "user-1", nil, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer "+forged).Code)

	valid, err := IssueHMACToken(testSecret, "user-1", nil, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(h, "bearer "+valid).Code)
}

func TestRequireRole(t *testing.T) {
	h := Required(NewHMACVerifier(testSecret))(RequireRole("admin")(echoUser()))

	customer, err := IssueHMACToken(testSecret, "user-1", []string{"customer"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(h, "Bearer "+customer).Code)

	admin, err := IssueHMACToken(testSecret, "ops-1", []string{"ADMIN"}, time.Hour)
	require.NoError(t, err)
	rec := serve(h, "Bearer "+admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user=ops-1", rec.Body.String())
}

func TestHMACVerifier_RealmRolesAndAlgorithm(t *testing.T) {
	v := NewHMACVerifier(testSecret)

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "kc-user"},
		RealmAccess:      realmAccess{Roles: []string{"admin"}},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	got, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, got.HasRole("admin"))

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), hs512)
	assert.Error(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), noSub)
	assert.ErrorContains(t, err, "subject")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, UserID(ctx))
	assert.False(t, HasRole(ctx, "admin"))

	ctx = WithClaims(ctx, &Claims{Subject: "u", Roles: []string{"admin"}})
	assert.Equal(t, "u", UserID(ctx))
	assert.True(t, HasRole(ctx, "admin"))
}
