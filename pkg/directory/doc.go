// Package directory provides the user, role, and permission data model for the
// Pariksha testing platform.
//
// # Overview
//
// This package manages accounts and their role/permission bundles. Users carry
// optional hierarchy-scope fields (state, district, school, class codes) that
// place them in the organizational tree; pkg/rbac evaluates those fields, this
// package only stores and validates them.
//
// # Hierarchy Scope
//
// Scope fields are nullable and increasingly specific:
//
//	StateCode    "MH"            state coordinator
//	DistrictCode "MH-PUN"        district coordinator (state required)
//	SchoolCode   "SCH-001"       school admin (globally unique code)
//	ClassCode    "10A"           class teacher / student (school required)
//
// Validation enforces the parent-code invariants at create/update time; a
// district code without a state code is rejected with ValidationFailed.
//
// # Usage Example
//
// Create a user:
//
//	user := &directory.User{
//		Email:    "asha@school.example",
//		Username: "asha.verma",
//		Name:     "Asha Verma",
//		Active:   true,
//		Roles:    []directory.Role{teacherRole},
//	}
//	err := store.CreateUser(ctx, user)
//
// Look up with the cached store (L1 LRU + L2 Redis read-through):
//
//	cached := directory.NewCachedStore(store, redisClient, cacheCfg, metrics)
//	user, err := cached.GetUserByEmail(ctx, "asha@school.example")
//
// # Related Packages
//
//   - pkg/rbac: Authorization predicates over resolved User records
//   - pkg/auth: Authentication flows (login, refresh, password change)
//   - pkg/hierarchy: Region containment index behind the scope checks
package directory
