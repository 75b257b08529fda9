package wrap

import (
	"context"
	"errors"
)

// errorWithLogCtx carries the LogCtx captured at wrap time.
type errorWithLogCtx struct {
	err    error
	logCtx LogCtx
}

func (e *errorWithLogCtx) Error() string {
	return e.err.Error()
}

func (e *errorWithLogCtx) Unwrap() error {
	return e.err
}

// ErrorCtx restores the LogCtx captured inside err onto ctx, so the
// log record points at where the error happened, not where it was
// finally logged.
func ErrorCtx(ctx context.Context, err error) context.Context {
	if err == nil {
		return ctx
	}
	var e *errorWithLogCtx
	if errors.As(err, &e) && e != nil {
		return context.WithValue(ctx, LogCtxKey, e.logCtx)
	}
	return ctx
}
