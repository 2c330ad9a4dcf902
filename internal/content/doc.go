// Package content holds the mutable payload that pipeline steps read and
// transform: a byte buffer plus a string-keyed metadata map.
//
// Steps never mutate a job's Content in place. They work on a Clone and the
// job swaps the clone in once the step succeeds, so readers always observe
// data and meta as of the last successful Update.
package content
