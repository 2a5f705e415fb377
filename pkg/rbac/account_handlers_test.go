package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/masthead/pkg/audit"
	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/middleware"
	"github.com/platinummonkey/masthead/pkg/storage"
)

func setupAccountHandlers(t *testing.T) (*handlerFixture, *auth.TokenManager) {
	t.Helper()
	store, db := setupStore(t)
	require.NoError(t, storage.Migrate(context.Background(), db, storage.DialectSQLite, "auth", auth.Migrations()))
	ctx := context.Background()

	admin := &User{Email: "admin@example.com", RoleID: SuperuserRoleID}
	reader := &User{Email: "reader@example.com"}
	require.NoError(t, store.CreateUser(ctx, admin))
	require.NoError(t, store.CreateUser(ctx, reader))

	recorder := &recordingAudit{}
	tokens := auth.NewTokenManager(db)

	router := mux.NewRouter()
	router.Use(middleware.NewAuthMiddleware(tokens, true).Handler)
	NewAccountHandlers(NewHandlers(store, NewGuard(store, recorder, nil), recorder), tokens).RegisterRoutes(router)

	return &handlerFixture{store: store, router: router, recorder: recorder, admin: admin, reader: reader}, tokens
}

func bearer(t *testing.T, tokens *auth.TokenManager, user *User) string {
	t.Helper()
	_, token, err := tokens.CreateToken(context.Background(), user.ID, "test", nil)
	require.NoError(t, err)
	return token
}

func (f *handlerFixture) doBearer(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := f.request(t, method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAccountHandlers_CreateUser(t *testing.T) {
	f, tokens := setupAccountHandlers(t)
	adminToken := bearer(t, tokens, f.admin)
	readerToken := bearer(t, tokens, f.reader)

	rec := f.doBearer(t, http.MethodPost, "/users", "", map[string]interface{}{"email": "new@example.com"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.doBearer(t, http.MethodPost, "/users", readerToken, map[string]interface{}{"email": "new@example.com"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.doBearer(t, http.MethodPost, "/users", adminToken, map[string]interface{}{"email": "new@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, DefaultRoleID, created.RoleID)
	assert.NotZero(t, created.ID)

	stored, err := f.store.GetUser(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", stored.Email)

	rec = f.doBearer(t, http.MethodPost, "/users", adminToken, map[string]interface{}{"email": "new@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.doBearer(t, http.MethodPost, "/users", adminToken, map[string]interface{}{"email": "other@example.com", "role_id": 500})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.doBearer(t, http.MethodPost, "/users", adminToken, map[string]interface{}{"email": "no-at-sign"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var userCreates int
	for _, event := range f.recorder.events {
		if event.EventType == audit.EventTypeAuthUserCreate {
			userCreates++
			assert.Equal(t, fmt.Sprint(created.ID), event.ResourceID)
		}
	}
	assert.Equal(t, 1, userCreates)
}

func TestAccountHandlers_GetUser(t *testing.T) {
	f, tokens := setupAccountHandlers(t)
	readerToken := bearer(t, tokens, f.reader)

	rec := f.doBearer(t, http.MethodGet, fmt.Sprintf("/users/%d", f.reader.ID), readerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.doBearer(t, http.MethodGet, fmt.Sprintf("/users/%d", f.admin.ID), readerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.doBearer(t, http.MethodGet, "/users/9999", bearer(t, tokens, f.admin), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountHandlers_TokenLifecycle(t *testing.T) {
	f, tokens := setupAccountHandlers(t)
	readerToken := bearer(t, tokens, f.reader)

	rec := f.doBearer(t, http.MethodPost, "/tokens", readerToken, map[string]interface{}{"name": "laptop"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var issued struct {
		ID          int64  `json:"id"`
		UserID      int64  `json:"user_id"`
		Token       string `json:"token"`
		TokenPrefix string `json:"token_prefix"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	assert.Equal(t, f.reader.ID, issued.UserID)
	assert.Contains(t, issued.Token, issued.TokenPrefix)

	// the issued token authenticates on its own
	rec = f.doBearer(t, http.MethodGet, "/tokens", issued.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []auth.APIToken
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)
	assert.NotContains(t, rec.Body.String(), issued.Token)

	rec = f.doBearer(t, http.MethodDelete, fmt.Sprintf("/tokens/%d", issued.ID), readerToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.doBearer(t, http.MethodGet, "/tokens", issued.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.doBearer(t, http.MethodDelete, "/tokens/9999", readerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.doBearer(t, http.MethodPost, "/tokens", readerToken, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	past := time.Now().Add(-time.Hour)
	rec = f.doBearer(t, http.MethodPost, "/tokens", readerToken, map[string]interface{}{"name": "old", "expires_at": past})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountHandlers_OtherUsersTokens(t *testing.T) {
	f, tokens := setupAccountHandlers(t)
	adminToken := bearer(t, tokens, f.admin)
	readerToken := bearer(t, tokens, f.reader)

	rec := f.doBearer(t, http.MethodPost, "/tokens", readerToken, map[string]interface{}{"name": "x", "user_id": f.admin.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.doBearer(t, http.MethodGet, fmt.Sprintf("/tokens?user_id=%d", f.admin.ID), readerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminTokens, err := tokens.ListTokens(context.Background(), f.admin.ID)
	require.NoError(t, err)
	require.Len(t, adminTokens, 1)
	rec = f.doBearer(t, http.MethodDelete, fmt.Sprintf("/tokens/%d", adminTokens[0].ID), readerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.doBearer(t, http.MethodPost, "/tokens", adminToken, map[string]interface{}{"name": "issued", "user_id": f.reader.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.doBearer(t, http.MethodGet, fmt.Sprintf("/tokens?user_id=%d", f.reader.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []auth.APIToken
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)

	rec = f.doBearer(t, http.MethodPost, "/tokens", adminToken, map[string]interface{}{"name": "ghost", "user_id": 9999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.doBearer(t, http.MethodGet, "/tokens?user_id=abc", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
