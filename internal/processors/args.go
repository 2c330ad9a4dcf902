package processors

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrBadArgument reports a missing or mistyped callable argument.
var ErrBadArgument = errors.New("bad argument")

func stringArg(name string, args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: %w: missing argument %d", name, ErrBadArgument, i+1)
	}
	switch v := args[i].(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	return "", fmt.Errorf("%s: %w: argument %d must be a string, got %T", name, ErrBadArgument, i+1, args[i])
}

func intArg(name string, args []any, i int) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%s: %w: missing argument %d", name, ErrBadArgument, i+1)
	}
	switch v := args[i].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w: argument %d: %v", name, ErrBadArgument, i+1, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s: %w: argument %d must be an integer, got %T", name, ErrBadArgument, i+1, args[i])
}
