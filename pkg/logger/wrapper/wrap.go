package wrap

import (
	"context"
	"errors"
)

// Error attaches the LogCtx currently carried by ctx to err, so the
// handler at the top of the call chain can log with the fields that
// were in scope where the failure happened.
func Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	// Already carrying a LogCtx: refresh it, keep the chain intact.
	var e *errorWithLogCtx
	if errors.As(err, &e) {
		if x, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
			e.logCtx = x
		}
		return err
	}

	c := LogCtx{}
	if x, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		c = x
	}
	return &errorWithLogCtx{
		err:    err,
		logCtx: c,
	}
}
