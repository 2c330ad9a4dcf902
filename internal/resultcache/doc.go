// Package resultcache stores applied job outputs keyed by the job's cache
// key so repeated requests for the same pipeline skip re-processing.
//
// Entries are single files: a short magic, a CBOR header with the metadata
// and compression tag, then the compressed payload. The cache prunes the
// least recently used entries once the total size exceeds its limit.
//
// NewManager returns nil when caching is disabled; every method on a nil
// *Manager is a no-op, so callers never branch on configuration.
package resultcache
