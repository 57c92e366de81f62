// Package hatctx carries per-call diagnostics settings through a context.
package hatctx

import "context"

type ctxIndex int

const ctxIndexVerbose ctxIndex = iota

// SetVerbose makes transports dump raw frames for calls made with the returned context.
func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

func IsVerbose(ctx context.Context) bool {
	val, ok := ctx.Value(ctxIndexVerbose).(bool)
	return ok && val
}
