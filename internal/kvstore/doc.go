// Package kvstore provides the byte-string key/value persistence that backs
// both checkpoint tiers.
//
// Store keeps entries in a single SQLite table (modernc.org/sqlite, WAL mode)
// so writes survive daemon restarts. Consumers depend on the KV interface; a
// mockgen mock lives in the mocks subpackage for persistence failure tests.
package kvstore
