// Package notifications publishes run outcomes to ntfy.
//
// The daemon emits an event when a run completes or fails. With no topic
// configured NewService returns a no-op implementation, so callers never need
// to check whether alerts are enabled.
package notifications
