// Package async provides panic-safe helpers for work that runs off the
// request path.
//
// Go runs a fire-and-forget task with a deadline; failures and panics are
// logged through the shared structured logger instead of crashing the
// process. Batch fans a slice out over a bounded number of workers and
// collects every error, which suits bulk jobs like seeding accounts where
// each item is independent and one failure must not stop the rest.
package async
