package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/libreserve/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(env *testEnv, method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, jsonBody(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		authHeader(req, token)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegisterCreatesUserWithEmptyPermissions(t *testing.T) {
	env := newTestEnv()

	rec := doRequest(env, http.MethodPost, "/users/register", "",
		`{"email":"new@example.com","password":"secret123","name":"New Reader"}`)

	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var auth AuthResponse
	require.NoError(t, json.Unmarshal(data, &auth))

	assert.NotEmpty(t, auth.Token)
	assert.Equal(t, "new@example.com", auth.User.Email)
	assert.Empty(t, auth.User.Permissions)
	assert.NotContains(t, rec.Body.String(), "password_hash")
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv()

	first := doRequest(env, http.MethodPost, "/users/register", "",
		`{"email":"dup@example.com","password":"secret123","name":"First"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := doRequest(env, http.MethodPost, "/users/register", "",
		`{"email":"dup@example.com","password":"secret123","name":"Second"}`)
	assert.Equal(t, http.StatusConflict, second.Code)

	resp := decodeResponse(t, second)
	assert.False(t, resp.Success)
	assert.Equal(t, "email already registered", resp.Error)

	// First account is unaffected.
	user, err := env.users.GetByEmail(context.Background(), "dup@example.com")
	require.NoError(t, err)
	assert.Equal(t, "First", user.Name)
	assert.True(t, user.IsActive)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv()

	cases := []struct {
		name string
		body string
	}{
		{"short password", `{"email":"a@example.com","password":"short","name":"A"}`},
		{"bad email", `{"email":"not-an-email","password":"secret123","name":"A"}`},
		{"missing name", `{"email":"a@example.com","password":"secret123","name":""}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(env, http.MethodPost, "/users/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv()
	env.seedUser(t, "reader@example.com")

	ok := doRequest(env, http.MethodPost, "/users/login", "",
		`{"email":"reader@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusOK, ok.Code)

	wrong := doRequest(env, http.MethodPost, "/users/login", "",
		`{"email":"reader@example.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)

	unknown := doRequest(env, http.MethodPost, "/users/login", "",
		`{"email":"nobody@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
}

func TestLoginRejectsDeactivatedUser(t *testing.T) {
	env := newTestEnv()
	user, _ := env.seedUser(t, "gone@example.com")
	require.NoError(t, env.users.Deactivate(context.Background(), user.ID))

	rec := doRequest(env, http.MethodPost, "/users/login", "",
		`{"email":"gone@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, "invalid credentials", resp.Error)
}

func TestUpdateUserStripsPasswordField(t *testing.T) {
	env := newTestEnv()
	user, token := env.seedUser(t, "reader@example.com")

	rec := doRequest(env, http.MethodPut, fmt.Sprintf("/users/%d", user.ID), token,
		`{"name":"Renamed","password":"evil-new-password"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := env.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, user.PasswordHash, updated.PasswordHash)

	// Old password still works.
	login := doRequest(env, http.MethodPost, "/users/login", "",
		`{"email":"reader@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusOK, login.Code)
}

func TestUpdateUserCannotGrantOwnPermissions(t *testing.T) {
	env := newTestEnv()
	user, token := env.seedUser(t, "reader@example.com")

	rec := doRequest(env, http.MethodPut, fmt.Sprintf("/users/%d", user.ID), token,
		`{"permissions":["modify_users","create_books"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := env.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Permissions)
}

func TestUpdateUserPermissionHolderCanGrant(t *testing.T) {
	env := newTestEnv()
	user, _ := env.seedUser(t, "reader@example.com")
	_, adminToken := env.seedUser(t, "admin@example.com", types.PermissionModifyUsers)

	rec := doRequest(env, http.MethodPut, fmt.Sprintf("/users/%d", user.ID), adminToken,
		`{"permissions":["create_books"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := env.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, updated.Permissions.Has(types.PermissionCreateBooks))
}

func TestUpdateOtherUserForbiddenWithoutPermission(t *testing.T) {
	env := newTestEnv()
	alice, _ := env.seedUser(t, "alice@example.com")
	_, bobToken := env.seedUser(t, "bob@example.com")

	rec := doRequest(env, http.MethodPut, fmt.Sprintf("/users/%d", alice.ID), bobToken,
		`{"name":"Hijacked"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	unchanged, err := env.users.GetByID(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test User", unchanged.Name)
}

func TestDeactivateUserSoftDeletes(t *testing.T) {
	env := newTestEnv()
	user, token := env.seedUser(t, "reader@example.com")

	rec := doRequest(env, http.MethodDelete, fmt.Sprintf("/users/%d", user.ID), token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Record retained, just inactive.
	stored, err := env.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	login := doRequest(env, http.MethodPost, "/users/login", "",
		`{"email":"reader@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusUnauthorized, login.Code)
}
