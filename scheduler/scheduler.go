// Package scheduler provides background job management for the portfolio API.
// It handles:
// - The recurring price refresh chain (recurring.go)
// - Periodic purge of expired sessions
//
// The Scheduler is started once from process entry and stopped on shutdown.
package scheduler
