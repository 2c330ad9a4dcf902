// Package job models a declarative pipeline that produces a binary artifact.
//
// A Job is an ordered list of typed steps (fetch, fetch_url, fetch_file,
// generate, process) plus the Content they produce and the url attributes
// accumulated while the pipeline was built. Steps are applied lazily and
// strictly in order; applied steps always form a prefix of the list, and a
// failing step leaves earlier progress in place so a later Apply resumes
// where the last one stopped.
//
// Jobs serialize to compact URL tokens through the serializer package and
// are signed with a short code so a URL cannot be edited to request
// different processing.
//
// # Entry Points
//
// NewEngine: shared collaborators (datastore, registry, signer, HTTP client).
// Engine.NewJob / Engine.Fetch / Engine.Deserialize: build jobs.
// Job.Apply: materialize pending steps.
// Job.Serialize / Job.SHA / Job.ValidateSHA: wire format and integrity.
//
// # Chaining
//
// Add* methods append to the receiver and return it. The unprefixed forms
// (Fetch, Process, ...) return an independent copy with the step appended;
// neither job observes later changes to the other.
package job
