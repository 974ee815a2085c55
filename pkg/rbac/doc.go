// Package rbac provides the authorization decision engine for the Pariksha
// testing platform.
//
// # Overview
//
// Every decision is a pure function of already-resolved directory.User
// records: callers look the users up first, then ask the engine. Predicates
// return booleans and never perform I/O, so they are safe to call from any
// number of request goroutines without locking. The Require* guards wrap the
// predicates and turn a false into apperr.PermissionDenied for use at
// operation entry points.
//
// # Hierarchy Rules
//
// Management authority follows the organizational tree. CanManageUser walks
// an ordered rule chain keyed on the manager's most specific matching role:
//
//	ADMIN     manages everyone
//	STATE     manages users in the same state
//	DISTRICT  manages users in the same state and district
//	SCHOOL    manages users in the same school (school codes are global)
//	CLASS     manages STUDENT users in the same school and class
//
// The first branch whose role matches decides; a STATE coordinator with a
// mismatched state code is denied even if some lower-level code happens to
// line up.
//
// Scope access checks (CanAccessDistrict and friends) consult a region
// containment index so that a state coordinator only reaches districts that
// actually sit inside their state. An engine built with NewEngine(nil) skips
// the containment lookups and lets higher roles through, for callers that do
// not load a region tree.
//
// # Usage Example
//
//	engine := rbac.NewEngine(tree)
//
//	if !engine.CanManageUser(actor, target) {
//		// deny
//	}
//
//	// At a service boundary, prefer the guard form:
//	if err := engine.RequirePermission(actor, "CREATE_TEST"); err != nil {
//		return err // apperr.PermissionDenied
//	}
//
// # Related Packages
//
//   - pkg/directory: The User/Role/Permission records the engine evaluates
//   - pkg/hierarchy: The containment index behind the scope checks
//   - pkg/middleware: HTTP enforcement built on the guards
package rbac
