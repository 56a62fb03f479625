// Package id provides a 128-bit, lexicographically sortable identifier used
// for subscriber (client) identities.
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// The Generator is monotonic per process: a regressing clock pins to the
// last seen millisecond, and sequence overflow waits for the next one.
//
//	g := id.NewGenerator()
//	cid := g.Next()
//	s := cid.String() // 32 hex chars
//	back, _ := id.Parse(s)
package id
