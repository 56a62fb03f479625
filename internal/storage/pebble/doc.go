// Package pebblestore provides a thin wrapper around Pebble with fsync
// policy, batches, prefix scans and minimal metrics hooks. evbus keeps
// its API users here; events themselves are never persisted.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("user/alice"), payload)
//	_ = db.ScanPrefix([]byte("user/"), func(k, v []byte) error { return nil })
package pebblestore
