package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/libreserve/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	user := types.User{
		ID:          42,
		Email:       "reader@example.com",
		Permissions: types.PermissionList{types.PermissionModifyBooks},
	}

	token, err := issueToken(user, []byte(testSecret), time.Hour)
	require.NoError(t, err)

	claims, err := parseClaims(token, []byte(testSecret))
	require.NoError(t, err)

	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "reader@example.com", claims.Email)
	assert.True(t, claims.Permissions.Has(types.PermissionModifyBooks))
	assert.False(t, claims.Permissions.Has(types.PermissionModifyUsers))
}

func TestParseClaimsRejectsWrongSecret(t *testing.T) {
	token, err := issueToken(types.User{ID: 1}, []byte(testSecret), time.Hour)
	require.NoError(t, err)

	_, err = parseClaims(token, []byte("other-secret"))
	assert.Error(t, err)
}

func TestParseClaimsRejectsExpiredToken(t *testing.T) {
	token, err := issueToken(types.User{ID: 1}, []byte(testSecret), -time.Minute)
	require.NoError(t, err)

	_, err = parseClaims(token, []byte(testSecret))
	assert.Error(t, err)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/reservations/my-reservations", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestRequireAuthRejectsGarbageToken(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/reservations/my-reservations", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePermissionsForbidsUnprivilegedCaller(t *testing.T) {
	env := newTestEnv()
	_, token := env.seedUser(t, "plain@example.com")

	body := `{"title":"T","author":"A","isbn":"1","genre":"g","publisher":"p","publishDate":"2001-01-01","totalCopies":1}`
	req := httptest.NewRequest(http.MethodPost, "/books", jsonBody(body))
	authHeader(req, token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireSelfOrPermission(t *testing.T) {
	env := newTestEnv()
	alice, aliceToken := env.seedUser(t, "alice@example.com")
	_, bobToken := env.seedUser(t, "bob@example.com")
	_, adminToken := env.seedUser(t, "admin@example.com", types.PermissionModifyUsers)

	profileURL := fmt.Sprintf("/users/profile/%d", alice.ID)

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"self", aliceToken, http.StatusOK},
		{"other user", bobToken, http.StatusForbidden},
		{"permission holder", adminToken, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, profileURL, nil)
			authHeader(req, tc.token)
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
