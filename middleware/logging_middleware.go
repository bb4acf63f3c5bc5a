package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"balance-rpc/message"
)

// LoggingMiddleware logs every call's service method and duration, plus
// the error if the handler failed. A nil logger disables output.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			start := time.Now()
			rpcMessage := next(ctx, req)
			logger.Info("rpc handled",
				zap.String("serviceMethod", req.ServiceMethod),
				zap.Duration("duration", time.Since(start)),
			)
			if rpcMessage.Error != "" {
				logger.Warn("rpc failed",
					zap.String("serviceMethod", req.ServiceMethod),
					zap.String("error", rpcMessage.Error),
				)
			}
			return rpcMessage
		}
	}
}
