package main

import (
	"fmt"
	"strconv"
	"strings"

	"kiln/internal/job"
	"kiln/internal/serializer"
)

// parseSteps turns command-line step items into the job array form. An item
// is either "kind:arg,arg" (kind given by abbreviation or name) or a JSON
// array such as ["p","truncate",4]. A single item holding an array of arrays
// is taken as the whole job.
func parseSteps(items []string) ([][]any, error) {
	if len(items) == 1 && strings.HasPrefix(strings.TrimSpace(items[0]), "[[") {
		decoded, err := serializer.JSONDecode([]byte(items[0]))
		if err != nil {
			return nil, fmt.Errorf("parse steps: %w", err)
		}
		return serializer.ValidateArray(serializer.Normalize(decoded))
	}
	out := make([][]any, 0, len(items))
	for _, item := range items {
		step, err := parseStepItem(item)
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, nil
}

func parseStepItem(item string) ([]any, error) {
	trimmed := strings.TrimSpace(item)
	if trimmed == "" {
		return nil, fmt.Errorf("parse step: empty item")
	}
	if strings.HasPrefix(trimmed, "[") {
		decoded, err := serializer.JSONDecode([]byte(trimmed))
		if err != nil {
			return nil, fmt.Errorf("parse step %q: %w", item, err)
		}
		step, ok := serializer.Normalize(decoded).([]any)
		if !ok {
			return nil, fmt.Errorf("parse step %q: %w", item, serializer.ErrInvalidArray)
		}
		return step, nil
	}

	head, rest, hasArgs := strings.Cut(trimmed, ":")
	kind, ok := job.KindByAbbreviation(head)
	if !ok {
		if kind, ok = job.KindByName(head); !ok {
			return nil, fmt.Errorf("parse step %q: unknown step %q (want one of %s)", item, head, strings.Join(job.StepNames(), ", "))
		}
	}
	step := []any{kind.Abbreviation()}
	if !hasArgs {
		return step, nil
	}
	switch kind {
	case job.KindProcess, job.KindGenerate:
		for _, arg := range strings.Split(rest, ",") {
			step = append(step, scalarArg(arg))
		}
	default:
		// Single-argument steps keep commas and colons in paths and URLs.
		step = append(step, rest)
	}
	return step, nil
}

// scalarArg reads integer-looking arguments as integers so that "truncate,4"
// signs the same as ["p","truncate",4].
func scalarArg(arg string) any {
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return n
	}
	return arg
}

// jobFromArgs builds a job from either a single token or a list of step items.
func jobFromArgs(engine *job.Engine, args []string) (*job.Job, error) {
	if len(args) == 1 && looksLikeToken(args[0]) {
		return engine.Deserialize(args[0])
	}
	arr, err := parseSteps(args)
	if err != nil {
		return nil, err
	}
	return engine.FromArray(arr)
}

func looksLikeToken(arg string) bool {
	if strings.ContainsAny(arg, ":[ ") {
		return false
	}
	_, ok := job.KindByAbbreviation(arg)
	if ok {
		return false
	}
	_, ok = job.KindByName(arg)
	return !ok
}
