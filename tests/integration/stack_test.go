//go:build integration

package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/pariksha-io/pariksha/pkg/api"
	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/auth"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/hierarchy"
	"github.com/pariksha-io/pariksha/pkg/observability"
	"github.com/pariksha-io/pariksha/pkg/rbac"
)

// startPostgres boots a disposable PostgreSQL container for the test
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("pariksha_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	return db
}

type stack struct {
	server   *api.Server
	store    directory.Store
	auditLog *audit.DBLogger
}

// buildStack assembles the service against a real database: migrations,
// seeded catalog and roles, a small region tree, and the full router.
func buildStack(t *testing.T, db *sql.DB) *stack {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, directory.RunMigrations(ctx, db))
	store := directory.NewPostgresStore(db)
	require.NoError(t, directory.Seed(ctx, store))

	idx, err := hierarchy.NewIndex([]hierarchy.Region{
		{Level: hierarchy.LevelState, Code: "MH", Name: "Maharashtra"},
		{Level: hierarchy.LevelState, Code: "KA", Name: "Karnataka"},
		{Level: hierarchy.LevelDistrict, Code: "MH-PUN", Name: "Pune", ParentCode: "MH"},
		{Level: hierarchy.LevelSchool, Code: "SCH-001", Name: "Sunrise Public School", ParentCode: "MH-PUN"},
		{Level: hierarchy.LevelClass, Code: "10A", Name: "Class 10 Section A", ParentCode: "SCH-001"},
	})
	require.NoError(t, err)
	tree := hierarchy.NewTree(idx)

	logger := observability.NewLogger(observability.ParseLevel("error"), os.Stderr)

	auditLog, err := audit.NewDBLogger(db)
	require.NoError(t, err)
	recorder := audit.NewAsyncRecorder(auditLog, 64, logger, nil)
	t.Cleanup(func() { recorder.Close() })

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	issuer := auth.NewIssuer("integration-test-secret-0123456789abcdef", 15*time.Minute, time.Hour)
	service := auth.NewService(store, hasher, issuer, recorder, logger, nil)

	server := api.NewServer(api.Config{
		Directory:   store,
		Engine:      rbac.NewEngine(tree),
		Issuer:      issuer,
		AuthService: service,
		Hasher:      hasher,
		Recorder:    recorder,
		Logger:      logger,
		AuditStore:  auditLog,
		Tree:        tree,
	})

	return &stack{server: server, store: store, auditLog: auditLog}
}

// seedAdmin creates the bootstrap administrator the way the admin CLI does
func seedAdmin(t *testing.T, store directory.Store, password string) *directory.User {
	t.Helper()
	ctx := context.Background()

	role, err := store.GetRoleByName(ctx, directory.RoleAdmin)
	require.NoError(t, err)

	hash, err := auth.NewBcryptHasher(bcrypt.MinCost).Hash(password)
	require.NoError(t, err)

	admin := &directory.User{
		Email:         "admin@pariksha.io",
		Username:      "admin",
		Name:          "Platform Admin",
		PasswordHash:  hash,
		Active:        true,
		EmailVerified: true,
		Roles:         []directory.Role{*role},
	}
	require.NoError(t, store.CreateUser(ctx, admin))
	return admin
}

func (s *stack) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.server.ServeHTTP(w, req)
	return w
}

func (s *stack) login(t *testing.T, identifier, password string) auth.LoginResult {
	t.Helper()

	w := s.do(t, "POST", "/api/v1/auth/login", "", api.LoginRequest{
		Identifier: identifier,
		Password:   password,
	})
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())

	var result auth.LoginResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
	return result
}

func strptr(s string) *string { return &s }

func TestFullStack(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := startPostgres(t)
	s := buildStack(t, db)
	admin := seedAdmin(t, s.store, "admin-password")

	adminLogin := s.login(t, admin.Email, "admin-password")

	var stateUser directory.User
	t.Run("admin creates state coordinator", func(t *testing.T) {
		w := s.do(t, "POST", "/api/v1/users", adminLogin.AccessToken, api.CreateUserRequest{
			Email:    "state@mh.gov.in",
			Username: "mh-coordinator",
			Name:     "MH Coordinator",
			Password: "state-password",
			Roles:    []string{directory.RoleState},
			Placement: api.Placement{
				StateCode: strptr("MH"),
				StateName: strptr("Maharashtra"),
			},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.NoError(t, json.NewDecoder(w.Body).Decode(&stateUser))
		assert.Equal(t, "MH", *stateUser.StateCode)
	})

	stateLogin := s.login(t, "state@mh.gov.in", "state-password")

	var districtUser directory.User
	t.Run("state coordinator creates district user in own state", func(t *testing.T) {
		w := s.do(t, "POST", "/api/v1/users", stateLogin.AccessToken, api.CreateUserRequest{
			Email:    "district@pune.gov.in",
			Username: "pune-coordinator",
			Name:     "Pune Coordinator",
			Password: "district-password",
			Roles:    []string{directory.RoleDistrict},
			Placement: api.Placement{
				StateCode:    strptr("MH"),
				DistrictCode: strptr("MH-PUN"),
			},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.NoError(t, json.NewDecoder(w.Body).Decode(&districtUser))
	})

	t.Run("state coordinator cannot reach another state", func(t *testing.T) {
		w := s.do(t, "POST", "/api/v1/users", stateLogin.AccessToken, api.CreateUserRequest{
			Email:    "intruder@ka.gov.in",
			Username: "ka-intruder",
			Name:     "KA Intruder",
			Password: "intruder-password",
			Roles:    []string{directory.RoleDistrict},
			Placement: api.Placement{
				StateCode: strptr("KA"),
			},
		})
		assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	})

	t.Run("refresh rotates the access token", func(t *testing.T) {
		w := s.do(t, "POST", "/api/v1/auth/refresh", "", api.RefreshRequest{
			RefreshToken: stateLogin.RefreshToken,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var refreshed auth.LoginResult
		require.NoError(t, json.NewDecoder(w.Body).Decode(&refreshed))
		require.NotEmpty(t, refreshed.AccessToken)

		me := s.do(t, "GET", "/api/v1/auth/me", refreshed.AccessToken, nil)
		assert.Equal(t, http.StatusOK, me.Code)
	})

	t.Run("token validation endpoint", func(t *testing.T) {
		w := s.do(t, "POST", "/api/v1/auth/validate", "", api.ValidateRequest{
			Token: stateLogin.AccessToken,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp api.ValidateResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Valid)
		assert.Equal(t, stateUser.ID.String(), resp.UserID)

		w = s.do(t, "POST", "/api/v1/auth/validate", "", api.ValidateRequest{Token: "garbage"})
		require.Equal(t, http.StatusOK, w.Code)
		resp = api.ValidateResponse{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.False(t, resp.Valid)
	})

	t.Run("deactivation binds on the next request", func(t *testing.T) {
		districtLogin := s.login(t, "district@pune.gov.in", "district-password")

		w := s.do(t, "POST", fmt.Sprintf("/api/v1/users/%s/deactivate", districtUser.ID), adminLogin.AccessToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		// The still-unexpired token is refused because authorization reads
		// the directory, not the token.
		me := s.do(t, "GET", "/api/v1/auth/me", districtLogin.AccessToken, nil)
		assert.Equal(t, http.StatusUnauthorized, me.Code)

		relogin := s.do(t, "POST", "/api/v1/auth/login", "", api.LoginRequest{
			Identifier: "district@pune.gov.in",
			Password:   "district-password",
		})
		assert.Equal(t, http.StatusUnauthorized, relogin.Code)
	})

	t.Run("hierarchy browsing", func(t *testing.T) {
		w := s.do(t, "GET", "/api/v1/hierarchy/states", adminLogin.AccessToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var states []hierarchy.Region
		require.NoError(t, json.NewDecoder(w.Body).Decode(&states))
		codes := make([]string, 0, len(states))
		for _, st := range states {
			codes = append(codes, st.Code)
		}
		assert.ElementsMatch(t, []string{"MH", "KA"}, codes)
	})

	t.Run("audit trail persists the session", func(t *testing.T) {
		// The recorder is asynchronous; wait for the worker to drain.
		require.Eventually(t, func() bool {
			events, err := s.auditLog.Search(context.Background(), audit.SearchFilter{
				EventTypes: []audit.EventType{audit.EventTypeAuthLogin},
			})
			return err == nil && len(events) >= 3
		}, 5*time.Second, 100*time.Millisecond, "expected login events to reach the database")

		w := s.do(t, "GET", "/api/v1/audit/events?event_types=auth.login", adminLogin.AccessToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		denied, err := s.auditLog.Search(context.Background(), audit.SearchFilter{
			EventTypes: []audit.EventType{audit.EventTypeAuthzAccessDenied},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, denied, "the cross-state attempt should leave a denial event")
	})

	t.Run("audit access needs permission", func(t *testing.T) {
		w := s.do(t, "GET", "/api/v1/audit/events", stateLogin.AccessToken, nil)
		// STATE carries VIEW_AUDIT_LOG in the default catalog
		assert.Equal(t, http.StatusOK, w.Code)

		studentRole, err := s.store.GetRoleByName(context.Background(), directory.RoleStudent)
		require.NoError(t, err)

		hash, err := auth.NewBcryptHasher(bcrypt.MinCost).Hash("student-password")
		require.NoError(t, err)
		student := &directory.User{
			Email:        "student@school.edu",
			Username:     "student1",
			Name:         "Student One",
			PasswordHash: hash,
			Active:       true,
			Roles:        []directory.Role{*studentRole},
			StateCode:    strptr("MH"),
			DistrictCode: strptr("MH-PUN"),
			SchoolCode:   strptr("SCH-001"),
			ClassCode:    strptr("10A"),
			RollNumber:   strptr("23"),
		}
		require.NoError(t, s.store.CreateUser(context.Background(), student))

		studentLogin := s.login(t, "student@school.edu", "student-password")
		denied := s.do(t, "GET", "/api/v1/audit/events", studentLogin.AccessToken, nil)
		assert.Equal(t, http.StatusForbidden, denied.Code)
	})
}

func TestChangePasswordFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := startPostgres(t)
	s := buildStack(t, db)
	admin := seedAdmin(t, s.store, "first-password")

	first := s.login(t, admin.Email, "first-password")

	w := s.do(t, "POST", "/api/v1/auth/change-password", first.AccessToken, api.ChangePasswordRequest{
		CurrentPassword: "first-password",
		NewPassword:     "second-password",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stale := s.do(t, "POST", "/api/v1/auth/login", "", api.LoginRequest{
		Identifier: admin.Email,
		Password:   "first-password",
	})
	assert.Equal(t, http.StatusUnauthorized, stale.Code)

	s.login(t, admin.Email, "second-password")
}
