package hierarchy

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/httputil"
)

// RegionAccess answers whether an actor may browse inside a region.
// *rbac.Engine satisfies it.
type RegionAccess interface {
	CanAccessState(user *directory.User, stateCode string) bool
	CanAccessDistrict(user *directory.User, districtCode string) bool
	CanAccessSchool(user *directory.User, schoolCode string) bool
}

// Handlers serves the browse endpoints that populate region dropdowns.
// Authentication and the VIEW_HIERARCHY guard are applied by the router
// these are mounted on; WithAccess adds per-region scope checks on top.
type Handlers struct {
	tree   *Tree
	access RegionAccess
	actor  func(*http.Request) *directory.User
}

// NewHandlers creates browse handlers over the tree
func NewHandlers(tree *Tree) *Handlers {
	return &Handlers{tree: tree}
}

// WithAccess restricts the descent endpoints to regions the request actor
// can reach: listing a state's districts requires access to that state, and
// so on down. actor resolves the caller from the request, typically
// middleware.Actor. The state list itself stays unrestricted so clients can
// render the top of the tree. Returns the handlers for chaining.
func (h *Handlers) WithAccess(access RegionAccess, actor func(*http.Request) *directory.User) *Handlers {
	h.access = access
	h.actor = actor
	return h
}

// RegisterRoutes registers the browse routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/hierarchy/states", h.ListStates).Methods("GET")
	router.HandleFunc("/hierarchy/states/{code}/districts", h.ListDistricts).Methods("GET")
	router.HandleFunc("/hierarchy/districts/{code}/schools", h.ListSchools).Methods("GET")
	router.HandleFunc("/hierarchy/schools/{code}/classes", h.ListClasses).Methods("GET")
}

func (h *Handlers) allowed(r *http.Request, check func(RegionAccess, *directory.User) bool) bool {
	if h.access == nil || h.actor == nil {
		return true
	}
	return check(h.access, h.actor(r))
}

// ListStates returns all states
func (h *Handlers) ListStates(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.tree.Snapshot().States())
}

// ListDistricts returns the districts of a state
func (h *Handlers) ListDistricts(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePathStringOrError(w, r, "code")
	if !ok {
		return
	}

	snapshot := h.tree.Snapshot()
	if !snapshot.HasState(code) {
		httputil.WriteAppError(w, apperr.NotFoundf("state not found: %s", code))
		return
	}
	if !h.allowed(r, func(a RegionAccess, u *directory.User) bool { return a.CanAccessState(u, code) }) {
		httputil.WriteAppError(w, apperr.PermissionDenied("no access to this state"))
		return
	}
	httputil.WriteSuccess(w, snapshot.Districts(code))
}

// ListSchools returns the schools of a district
func (h *Handlers) ListSchools(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePathStringOrError(w, r, "code")
	if !ok {
		return
	}

	snapshot := h.tree.Snapshot()
	if !snapshot.HasDistrict(code) {
		httputil.WriteAppError(w, apperr.NotFoundf("district not found: %s", code))
		return
	}
	if !h.allowed(r, func(a RegionAccess, u *directory.User) bool { return a.CanAccessDistrict(u, code) }) {
		httputil.WriteAppError(w, apperr.PermissionDenied("no access to this district"))
		return
	}
	httputil.WriteSuccess(w, snapshot.Schools(code))
}

// ListClasses returns the classes of a school
func (h *Handlers) ListClasses(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePathStringOrError(w, r, "code")
	if !ok {
		return
	}

	snapshot := h.tree.Snapshot()
	if !snapshot.HasSchool(code) {
		httputil.WriteAppError(w, apperr.NotFoundf("school not found: %s", code))
		return
	}
	if !h.allowed(r, func(a RegionAccess, u *directory.User) bool { return a.CanAccessSchool(u, code) }) {
		httputil.WriteAppError(w, apperr.PermissionDenied("no access to this school"))
		return
	}
	httputil.WriteSuccess(w, snapshot.Classes(code))
}
