package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/auth"
	"github.com/pariksha-io/pariksha/pkg/contextkeys"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/middleware"
	"github.com/pariksha-io/pariksha/pkg/observability"
)

const testSecret = "api-test-secret"

func strp(s string) *string { return &s }

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func testIssuer() *auth.Issuer {
	return auth.NewIssuer(testSecret, time.Hour, 720*time.Hour)
}

// fakeRecorder captures audit events synchronously
type fakeRecorder struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (r *fakeRecorder) Record(ctx context.Context, event *audit.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *fakeRecorder) all() []*audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audit.AuditEvent(nil), r.events...)
}

func (r *fakeRecorder) last() *audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// memStore is an in-memory directory.Store. It mirrors the postgres store's
// error mapping: NotFound on missing rows, AlreadyExists on unique-column
// hits, Validation on unknown referenced names.
type memStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*directory.User
	roles       map[int64]*directory.Role
	permissions map[int64]*directory.Permission
	nextRoleID  int64
	nextPermID  int64

	// lastFilter captures what listings actually queried, so scope
	// narrowing can be asserted.
	lastFilter directory.UserFilter
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[uuid.UUID]*directory.User),
		roles:       make(map[int64]*directory.Role),
		permissions: make(map[int64]*directory.Permission),
	}
}

// seedCatalog installs the permission catalog and the six built-in roles,
// the way RunMigrations plus Seed would against a fresh database.
func (s *memStore) seedCatalog(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, p := range directory.PermissionCatalog() {
		perm := p
		require.NoError(t, s.CreatePermission(ctx, &perm))
	}
	for _, r := range directory.BuiltInRoles() {
		role := r
		require.NoError(t, s.CreateRole(ctx, &role))
	}
}

func (s *memStore) mustRole(t *testing.T, name string) directory.Role {
	t.Helper()
	role, err := s.GetRoleByName(context.Background(), name)
	require.NoError(t, err)
	return *role
}

func copyUser(u *directory.User) *directory.User {
	copied := *u
	copied.Roles = append([]directory.Role(nil), u.Roles...)
	return &copied
}

func copyRole(r *directory.Role) *directory.Role {
	copied := *r
	copied.Permissions = append([]directory.Permission(nil), r.Permissions...)
	return &copied
}

func (s *memStore) CreateUser(ctx context.Context, user *directory.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return apperr.AlreadyExistsf("email already in use: %s", user.Email)
		}
		if existing.Username == user.Username {
			return apperr.AlreadyExistsf("username already in use: %s", user.Username)
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *memStore) GetUser(ctx context.Context, id uuid.UUID) (*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFoundf("user %s not found", id)
	}
	return copyUser(u), nil
}

func (s *memStore) GetUserByEmail(ctx context.Context, email string) (*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, apperr.NotFoundf("user %s not found", email)
}

func (s *memStore) GetUserByUsername(ctx context.Context, username string) (*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, apperr.NotFoundf("user %s not found", username)
}

func (s *memStore) ListUsers(ctx context.Context, filter directory.UserFilter) ([]*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter

	match := func(u *directory.User) bool {
		if filter.StateCode != "" && (u.StateCode == nil || *u.StateCode != filter.StateCode) {
			return false
		}
		if filter.DistrictCode != "" && (u.DistrictCode == nil || *u.DistrictCode != filter.DistrictCode) {
			return false
		}
		if filter.SchoolCode != "" && (u.SchoolCode == nil || *u.SchoolCode != filter.SchoolCode) {
			return false
		}
		if filter.ClassCode != "" && (u.ClassCode == nil || *u.ClassCode != filter.ClassCode) {
			return false
		}
		if filter.Active != nil && u.Active != *filter.Active {
			return false
		}
		if filter.RoleName != "" {
			found := false
			for _, r := range u.Roles {
				if r.Name == filter.RoleName {
					found = true
				}
			}
			if !found {
				return false
			}
		}
		return true
	}

	var out []*directory.User
	for _, u := range s.users {
		if match(u) {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

func (s *memStore) UpdateUser(ctx context.Context, user *directory.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return apperr.NotFoundf("user %s not found", user.ID)
	}
	user.PasswordHash = existing.PasswordHash
	user.UpdatedAt = time.Now()
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *memStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFoundf("user %s not found", id)
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *memStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFoundf("user %s not found", id)
	}
	u.LastLoginAt = &at
	return nil
}

func (s *memStore) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFoundf("user %s not found", id)
	}
	u.Active = active
	return nil
}

func (s *memStore) ReplaceUserRoles(ctx context.Context, id uuid.UUID, roleIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFoundf("user %s not found", id)
	}
	roles := make([]directory.Role, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		role, ok := s.roles[roleID]
		if !ok {
			return apperr.Validationf("unknown role id: %d", roleID)
		}
		roles = append(roles, *copyRole(role))
	}
	u.Roles = roles
	return nil
}

func (s *memStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return apperr.NotFoundf("user %s not found", id)
	}
	delete(s.users, id)
	return nil
}

func (s *memStore) CreateRole(ctx context.Context, role *directory.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == role.Name {
			return apperr.AlreadyExistsf("role already exists: %s", role.Name)
		}
	}
	for i, perm := range role.Permissions {
		if perm.ID != 0 {
			continue
		}
		resolved := false
		for _, p := range s.permissions {
			if p.Name == perm.Name {
				role.Permissions[i] = *p
				resolved = true
				break
			}
		}
		if !resolved {
			return apperr.Validationf("unknown permission: %s", perm.Name)
		}
	}
	s.nextRoleID++
	role.ID = s.nextRoleID
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now
	s.roles[role.ID] = copyRole(role)
	return nil
}

func (s *memStore) GetRole(ctx context.Context, id int64) (*directory.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, apperr.NotFoundf("role %d not found", id)
	}
	return copyRole(r), nil
}

func (s *memStore) GetRoleByName(ctx context.Context, name string) (*directory.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return copyRole(r), nil
		}
	}
	return nil, apperr.NotFoundf("role %s not found", name)
}

func (s *memStore) ListRoles(ctx context.Context) ([]directory.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]directory.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *copyRole(r))
	}
	return out, nil
}

func (s *memStore) UpdateRole(ctx context.Context, role *directory.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return apperr.NotFoundf("role %d not found", role.ID)
	}
	role.UpdatedAt = time.Now()
	s.roles[role.ID] = copyRole(role)
	return nil
}

func (s *memStore) DeleteRole(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return apperr.NotFoundf("role %d not found", id)
	}
	delete(s.roles, id)
	return nil
}

func (s *memStore) AddPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return apperr.NotFoundf("role %d not found", roleID)
	}
	perm, ok := s.permissions[permissionID]
	if !ok {
		return apperr.NotFoundf("permission %d not found", permissionID)
	}
	for _, p := range role.Permissions {
		if p.ID == permissionID {
			return nil
		}
	}
	role.Permissions = append(role.Permissions, *perm)
	return nil
}

func (s *memStore) RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return apperr.NotFoundf("role %d not found", roleID)
	}
	kept := role.Permissions[:0]
	for _, p := range role.Permissions {
		if p.ID != permissionID {
			kept = append(kept, p)
		}
	}
	role.Permissions = kept
	return nil
}

func (s *memStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return apperr.NotFoundf("role %d not found", roleID)
	}
	perms := make([]directory.Permission, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		perm, ok := s.permissions[id]
		if !ok {
			return apperr.Validationf("unknown permission id: %d", id)
		}
		perms = append(perms, *perm)
	}
	role.Permissions = perms
	return nil
}

func (s *memStore) CreatePermission(ctx context.Context, permission *directory.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions {
		if existing.Name == permission.Name {
			return apperr.AlreadyExistsf("permission already exists: %s", permission.Name)
		}
	}
	s.nextPermID++
	permission.ID = s.nextPermID
	now := time.Now()
	permission.CreatedAt = now
	permission.UpdatedAt = now
	copied := *permission
	s.permissions[permission.ID] = &copied
	return nil
}

func (s *memStore) GetPermission(ctx context.Context, id int64) (*directory.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[id]
	if !ok {
		return nil, apperr.NotFoundf("permission %d not found", id)
	}
	copied := *p
	return &copied, nil
}

func (s *memStore) GetPermissionByName(ctx context.Context, name string) (*directory.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Name == name {
			copied := *p
			return &copied, nil
		}
	}
	return nil, apperr.NotFoundf("permission %s not found", name)
}

func (s *memStore) ListPermissions(ctx context.Context) ([]directory.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]directory.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, *p)
	}
	return out, nil
}

func (s *memStore) UpdatePermission(ctx context.Context, permission *directory.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[permission.ID]; !ok {
		return apperr.NotFoundf("permission %d not found", permission.ID)
	}
	permission.UpdatedAt = time.Now()
	copied := *permission
	s.permissions[permission.ID] = &copied
	return nil
}

func (s *memStore) DeletePermission(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[id]; !ok {
		return apperr.NotFoundf("permission %d not found", id)
	}
	delete(s.permissions, id)
	return nil
}

// placement is shorthand for positioning fixture users; empty strings mean
// unset.
type placement struct {
	state    string
	district string
	school   string
	class    string
}

func (s *memStore) addUser(t *testing.T, username, password string, place placement, roles ...directory.Role) *directory.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &directory.User{
		Email:        username + "@school.example",
		Username:     username,
		Name:         "Fixture " + username,
		PasswordHash: string(hash),
		Active:       true,
		Roles:        roles,
	}
	if place.state != "" {
		user.StateCode = strp(place.state)
	}
	if place.district != "" {
		user.DistrictCode = strp(place.district)
	}
	if place.school != "" {
		user.SchoolCode = strp(place.school)
	}
	if place.class != "" {
		user.ClassCode = strp(place.class)
	}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

// jsonBody marshals v into a request body reader
func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

// decodeBody unmarshals a response body into out
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

// bearerToken mints a real access token for the user
func bearerToken(t *testing.T, issuer *auth.Issuer, user *directory.User) string {
	t.Helper()
	token, err := issuer.AccessToken(user)
	require.NoError(t, err)
	return token
}

// fixtureUsers is one account per hierarchy level: an unscoped admin, a
// Maharashtra coordinator, and a school head, teacher, and student all in
// the same Pune school.
type fixtureUsers struct {
	admin       *directory.User
	stateCoord  *directory.User
	schoolAdmin *directory.User
	teacher     *directory.User
	student     *directory.User
}

func seedFixtureUsers(t *testing.T, store *memStore) *fixtureUsers {
	t.Helper()
	return &fixtureUsers{
		admin: store.addUser(t, "root", "admin-pass-1", placement{},
			store.mustRole(t, directory.RoleAdmin)),
		stateCoord: store.addUser(t, "mh.coord", "state-pass-1", placement{state: "MH"},
			store.mustRole(t, directory.RoleState)),
		schoolAdmin: store.addUser(t, "sch1.head", "school-pass-1",
			placement{state: "MH", district: "MH-PUN", school: "SCH-001"},
			store.mustRole(t, directory.RoleSchool)),
		teacher: store.addUser(t, "sch1.teacher", "teacher-pass-1",
			placement{state: "MH", district: "MH-PUN", school: "SCH-001", class: "10A"},
			store.mustRole(t, directory.RoleClass)),
		student: store.addUser(t, "sch1.student", "student-pass-1",
			placement{state: "MH", district: "MH-PUN", school: "SCH-001", class: "10A"},
			store.mustRole(t, directory.RoleStudent)),
	}
}

// withActor stamps a resolved actor onto the request, the way the auth
// middleware would after verifying a token
func withActor(req *http.Request, user *directory.User) *http.Request {
	ctx := contextkeys.WithAuth(req.Context(), &middleware.AuthContext{User: user})
	return req.WithContext(ctx)
}

// doJSON runs a JSON request through the handler and returns the recorder
func doJSON(handler http.Handler, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}
