// Package main hosts the kiln CLI entrypoint and command graph.
//
// Commands build, inspect, sign, and apply job tokens, store source files in
// the configured datastore, and run the HTTP endpoint that serves job URLs.
// Configuration is resolved once per invocation and shared by every
// subcommand through commandContext.
package main
