// Package claim provides exclusive, non-blocking claims over mailbox items.
//
// A claim is taken with TryClaim and given back with Release. TryClaim never
// waits: if another party holds the key it reports false and the caller moves
// on. Keys are item paths without an extension, e.g.
// "<root>/received/alice/1700000000000".
//
// Two backends are provided. Marker creates a "<key>.lock" file next to the
// item and is what every external agent speaking the protocol understands.
// SQLite records claims as rows in a shared database and suits deployments
// where all consumers can open the same database file.
package claim

// Claimer grants exclusive claims on keys.
type Claimer interface {
	// TryClaim attempts to take key. It returns false, nil when the key is
	// already held.
	TryClaim(key string) (bool, error)
	// Release gives key back. Releasing a key that is not held is not an error.
	Release(key string) error
}
