// Package server exposes jobs over HTTP. A job URL carries the serialized
// step list as a path segment and its verification code as the sha query
// parameter; the handler decodes, verifies, applies, and streams the result.
//
// URLBuilder formats those URLs and is installed on the job engine so that
// job.URL works from anywhere a job is built.
package server
