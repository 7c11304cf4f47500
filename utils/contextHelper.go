package utils

import (
	"context"

	"github.com/daaty/dashboard-mobilidade-urbana-main/appctx"
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyCorrelationId, correlationId)
}
