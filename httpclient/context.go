/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const ctxKeyRequestType ctxKey = iota

// NewContextWithRequestType overrides the request type of the client for a single request.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext returns the request type stored by NewContextWithRequestType.
func GetRequestTypeFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestType).(string); ok {
		return s
	}
	return ""
}

func requestTypeOrDefault(ctx context.Context, def string) string {
	if reqType := GetRequestTypeFromContext(ctx); reqType != "" {
		return reqType
	}
	return def
}
