// Package processors provides the builtin, format-agnostic callables kiln
// registers by default: byte-level processors, a text generator and simple
// analysers. Image algorithms are deliberately absent; deployments register
// their own under additional names.
package processors
