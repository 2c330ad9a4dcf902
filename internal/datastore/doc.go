// Package datastore implements the backends that hold the source blobs a
// fetch step retrieves by uid.
//
// FileStore lays blobs out under a date-partitioned tree with a CBOR
// metadata sidecar next to each file. SQLiteStore keeps blobs and JSON
// metadata in a single table. MemoryStore backs tests and ephemeral setups.
// Open selects a backend from configuration.
package datastore
