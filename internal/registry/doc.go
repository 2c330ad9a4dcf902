// Package registry resolves processor, generator, and analyser callables by
// name.
//
// Jobs only carry names and positional arguments; the registry turns a name
// into something that can act on a content.Content. Callables may also
// implement URLUpdater, in which case the job invokes the hook as soon as the
// step is added so URL attributes reflect pending work.
package registry
