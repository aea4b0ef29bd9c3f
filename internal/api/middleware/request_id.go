package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDHeader is the HTTP header for request tracing.
	RequestIDHeader = "X-Request-ID"

	ctxKeyRequestID contextKey = "request_id"
	ctxKeySubject   contextKey = "subject"
	ctxKeyScopes    contextKey = "scopes"
)

// RequestID injects a unique request ID into the context and response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			id, _ := uuid.NewV7()
			rid = id.String()
		}
		c.Set(string(ctxKeyRequestID), rid)
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), ctxKeyRequestID, rid),
		)
		c.Next()
	}
}

// GetRequestID extracts request ID from context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// SetSubjectContext stores the authenticated caller in context.
func SetSubjectContext(ctx context.Context, subject string, scopes []string) context.Context {
	ctx = context.WithValue(ctx, ctxKeySubject, subject)
	ctx = context.WithValue(ctx, ctxKeyScopes, scopes)
	return ctx
}

// GetSubject extracts the authenticated caller from context.
func GetSubject(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySubject).(string); ok {
		return v
	}
	return ""
}

// GetScopes extracts the caller's scopes from context.
func GetScopes(ctx context.Context) []string {
	if v, ok := ctx.Value(ctxKeyScopes).([]string); ok {
		return v
	}
	return nil
}
