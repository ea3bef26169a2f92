// Package recovery decides where a selected file resumes.
//
// The Coordinator consults, in order, a live run of the same file, the
// identity-keyed checkpoint, and the session singleton matched by name and
// size. It only reads persisted state; the engine and the stores it wraps own
// every write.
package recovery
