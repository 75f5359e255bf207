// Package errors maps failures to low-cardinality labels for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/tensrai/dashboard-api/internal/errors"
)

// ErrPanic marks an error produced from a recovered panic.
var ErrPanic = goerrors.New("panic recovered")

// Classify returns a label for err: "timeout", "canceled", "panic", an AppError code, or
// the snake_cased type name of the innermost error.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, ErrPanic):
		return "panic"
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return typeName(err)
}

func typeName(err error) string {
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
