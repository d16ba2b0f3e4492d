// Package session persists liveview session state outside the process.
//
// Only the opaque state of a session's root view crosses the process
// boundary; trees, registries and queues are rebuilt on mount.
//
// # Stores
//
// The Store interface defines the contract for persistence backends:
//
//	store := session.NewRedisStore(session.NewRedisClient("localhost:6379", "", 0))
//	// or
//	store := session.NewSQLStore(db, session.WithSQLDialect(session.DialectSQLite))
//	// or
//	store := session.NewS3Store(s3.NewFromConfig(cfg), "bucket", "sessions/")
//	// or (default)
//	store := session.NewMemoryStore()
//
// Every entry carries a time to live; Load returns (nil, nil) for missing
// and expired entries alike.
//
// # Snapshots
//
// Serialize encodes a view into a versioned CBOR Snapshot. Views implement
// Stateful to choose their own encoding:
//
//	data, err := session.Serialize("counter", view)
//	// Later...
//	snap, err := session.Deserialize(data)
//	err = snap.Restore(view)
package session
