package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/directory"
)

// catalogEnv mounts the role and permission handlers without guards, the
// way the server does behind RequireAdmin. The admin fixture is stamped on
// mutating requests so audit attribution works.
type catalogEnv struct {
	router   *mux.Router
	store    *memStore
	recorder *fakeRecorder
	admin    *directory.User
}

func newCatalogEnv(t *testing.T) *catalogEnv {
	t.Helper()

	store := newMemStore()
	store.seedCatalog(t)
	admin := store.addUser(t, "root", "admin-pass-1", placement{}, store.mustRole(t, directory.RoleAdmin))

	recorder := &fakeRecorder{}
	roleHandlers := NewRoleHandlers(store, recorder, testLogger())
	permissionHandlers := NewPermissionHandlers(store, recorder, testLogger())

	router := mux.NewRouter()
	roleHandlers.RegisterReadRoutes(router)
	roleHandlers.RegisterAdminRoutes(router)
	permissionHandlers.RegisterReadRoutes(router)
	permissionHandlers.RegisterAdminRoutes(router)

	return &catalogEnv{
		router:   router,
		store:    store,
		recorder: recorder,
		admin:    admin,
	}
}

func (e *catalogEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = jsonBody(t, body)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req = withActor(req, e.admin)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestRoleHandlers_List(t *testing.T) {
	env := newCatalogEnv(t)

	rec := env.do(t, "GET", "/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Roles []directory.Role `json:"roles"`
		Count int              `json:"count"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 6, resp.Count)

	names := make([]string, 0, len(resp.Roles))
	for _, r := range resp.Roles {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, directory.RoleAdmin)
	assert.Contains(t, names, directory.RoleStudent)
}

func TestRoleHandlers_Get(t *testing.T) {
	env := newCatalogEnv(t)
	want := env.store.mustRole(t, directory.RoleState)

	rec := env.do(t, "GET", fmt.Sprintf("/roles/%d", want.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var role directory.Role
	decodeBody(t, rec, &role)
	assert.Equal(t, directory.RoleState, role.Name)
	assert.NotEmpty(t, role.Permissions)

	rec = env.do(t, "GET", "/roles/99999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoleHandlers_Create(t *testing.T) {
	env := newCatalogEnv(t)

	rec := env.do(t, "POST", "/roles", CreateRoleRequest{
		Name:        "EXAM_PROCTOR",
		Description: "Invigilates scheduled tests",
		Permissions: []string{directory.PermViewTest, directory.PermViewResult},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var role directory.Role
	decodeBody(t, rec, &role)
	assert.NotZero(t, role.ID)
	require.Len(t, role.Permissions, 2)
	assert.NotZero(t, role.Permissions[0].ID) // resolved, not just named

	event := env.recorder.last()
	require.NotNil(t, event)
	assert.Equal(t, audit.EventTypeAdminRoleCreate, event.EventType)
	assert.Equal(t, audit.ResourceTypeRole, event.ResourceType)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, env.admin.ID, *event.ActorID)
}

func TestRoleHandlers_CreateUnknownPermission(t *testing.T) {
	env := newCatalogEnv(t)

	rec := env.do(t, "POST", "/roles", CreateRoleRequest{
		Name:        "EXAM_PROCTOR",
		Permissions: []string{"NO_SUCH_GRANT"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown permission")
}

func TestRoleHandlers_CreateDuplicate(t *testing.T) {
	env := newCatalogEnv(t)

	rec := env.do(t, "POST", "/roles", CreateRoleRequest{Name: directory.RoleStudent})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRoleHandlers_Update(t *testing.T) {
	env := newCatalogEnv(t)
	role := env.store.mustRole(t, directory.RoleClass)

	rec := env.do(t, "PUT", fmt.Sprintf("/roles/%d", role.ID),
		UpdateRoleRequest{Description: strp("Class teacher, including substitutes")})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated directory.Role
	decodeBody(t, rec, &updated)
	assert.Equal(t, "Class teacher, including substitutes", updated.Description)
	assert.Equal(t, directory.RoleClass, updated.Name)

	rec = env.do(t, "PUT", "/roles/99999", UpdateRoleRequest{Description: strp("x")})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoleHandlers_Delete(t *testing.T) {
	env := newCatalogEnv(t)

	rec := env.do(t, "POST", "/roles", CreateRoleRequest{Name: "TEMP_ROLE"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var role directory.Role
	decodeBody(t, rec, &role)

	rec = env.do(t, "DELETE", fmt.Sprintf("/roles/%d", role.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	event := env.recorder.last()
	require.NotNil(t, event)
	assert.Equal(t, audit.EventTypeAdminRoleDelete, event.EventType)

	rec = env.do(t, "DELETE", fmt.Sprintf("/roles/%d", role.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoleHandlers_ReplacePermissions(t *testing.T) {
	env := newCatalogEnv(t)
	role := env.store.mustRole(t, directory.RoleStudent)

	rec := env.do(t, "PUT", fmt.Sprintf("/roles/%d/permissions", role.ID),
		ReplacePermissionsRequest{Permissions: []string{directory.PermViewTest, directory.PermTakeTest}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated directory.Role
	decodeBody(t, rec, &updated)
	names := make([]string, 0, len(updated.Permissions))
	for _, p := range updated.Permissions {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{directory.PermViewTest, directory.PermTakeTest}, names)
}

func TestRoleHandlers_ReplacePermissionsUnknownName(t *testing.T) {
	env := newCatalogEnv(t)
	role := env.store.mustRole(t, directory.RoleStudent)

	rec := env.do(t, "PUT", fmt.Sprintf("/roles/%d/permissions", role.ID),
		ReplacePermissionsRequest{Permissions: []string{"NO_SUCH_GRANT"}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRoleHandlers_AddAndRemovePermission(t *testing.T) {
	env := newCatalogEnv(t)
	role := env.store.mustRole(t, directory.RoleStudent)

	perm, err := env.store.GetPermissionByName(context.Background(), directory.PermViewHierarchy)
	require.NoError(t, err)

	rec := env.do(t, "POST", fmt.Sprintf("/roles/%d/permissions/%d", role.ID, perm.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated directory.Role
	decodeBody(t, rec, &updated)
	names := make([]string, 0, len(updated.Permissions))
	for _, p := range updated.Permissions {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, directory.PermViewHierarchy)

	rec = env.do(t, "DELETE", fmt.Sprintf("/roles/%d/permissions/%d", role.ID, perm.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	decodeBody(t, rec, &updated)
	for _, p := range updated.Permissions {
		assert.NotEqual(t, directory.PermViewHierarchy, p.Name)
	}
}
