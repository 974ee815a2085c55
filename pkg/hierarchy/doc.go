// Package hierarchy maintains the State → District → School → Class tree
// that scoped authorization decisions consult.
//
// # Overview
//
// The directory stores which region codes a user is scoped to; this package
// answers whether one region is contained in another. An Index is an
// immutable snapshot of the tree built from a flat region list. A Tree holds
// the current snapshot behind a read lock so it can be swapped atomically
// when the source changes.
//
// Two sources are supported. A YAML file describes the tree in nested form
// and can be watched for edits with a Watcher, which debounces change events
// and swaps in the new snapshot only when the file parses and validates. A
// database store persists regions for deployments where the tree is managed
// through the admin CLI instead of a file.
//
// # Usage Example
//
//	regions, err := hierarchy.LoadFile("regions.yaml")
//	if err != nil {
//		return err
//	}
//	idx, err := hierarchy.NewIndex(regions)
//	if err != nil {
//		return err
//	}
//	tree := hierarchy.NewTree(idx)
//
//	tree.SchoolInState("SCH-001", "MH") // true if SCH-001 sits under MH
//
// # Related Packages
//
//   - pkg/rbac: evaluates region access using a Tree
//   - pkg/directory: stores the per-user scope codes checked against the tree
package hierarchy
