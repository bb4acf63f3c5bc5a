package middleware

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"balance-rpc/message"
)

// RetryMiddleware retries calls that failed with a transient transport
// error, with exponential backoff. Non-retryable errors return immediately.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			rpcMessage := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if rpcMessage.Error == "" {
					return rpcMessage // Success, return response
				}
				if strings.Contains(rpcMessage.Error, "timeout") || strings.Contains(rpcMessage.Error, "connection refused") {
					logger.Info("retrying rpc",
						zap.Int("attempt", i+1),
						zap.String("serviceMethod", req.ServiceMethod),
						zap.String("error", rpcMessage.Error),
					)
					time.Sleep(baseDelay * time.Duration(1<<i)) // Exponential backoff
					rpcMessage = next(ctx, req)                 // Retry the request
				} else {
					return rpcMessage // Non-retryable error, return immediately
				}
			}
			return rpcMessage // Return last response after retries
		}
	}
}
