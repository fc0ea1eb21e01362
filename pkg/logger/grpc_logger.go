package logger

import (
	"context"
	"path"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewGrpcUnaryServerInterceptor builds a logging interceptor for unary gRPC methods.
func NewGrpcUnaryServerInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		startTime := time.Now()

		fullMethod := info.FullMethod
		service := path.Dir(fullMethod)[1:]
		method := path.Base(fullMethod)

		resp, err = handler(ctx, req)

		duration := time.Since(startTime)

		statusCode := codes.OK
		if err != nil {
			if st, ok := status.FromError(err); ok {
				statusCode = st.Code()
			} else {
				statusCode = codes.Unknown
			}
		}

		if statusCode == codes.OK {
			logger.Info("gRPC request completed",
				zap.String("grpc.service", service),
				zap.String("grpc.method", method),
				zap.String("grpc.code", statusCode.String()),
				zap.Duration("grpc.duration", duration),
			)
		} else if statusCode == codes.Canceled || statusCode == codes.DeadlineExceeded || statusCode == codes.ResourceExhausted ||
			statusCode == codes.Aborted || statusCode == codes.Unavailable || statusCode == codes.DataLoss {
			logger.Warn("gRPC request failed",
				zap.String("grpc.service", service),
				zap.String("grpc.method", method),
				zap.String("grpc.code", statusCode.String()),
				zap.Error(err),
				zap.Duration("grpc.duration", duration),
			)
		} else {
			logger.Error("gRPC request error",
				zap.String("grpc.service", service),
				zap.String("grpc.method", method),
				zap.String("grpc.code", statusCode.String()),
				zap.Error(err),
				zap.Duration("grpc.duration", duration),
			)
		}

		return resp, err
	}
}

// NewGrpcStreamServerInterceptor builds a logging interceptor for streaming gRPC methods.
func NewGrpcStreamServerInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		startTime := time.Now()

		fullMethod := info.FullMethod
		service := path.Dir(fullMethod)[1:]
		method := path.Base(fullMethod)

		logger.Info("gRPC stream started",
			zap.String("grpc.service", service),
			zap.String("grpc.method", method),
			zap.Bool("grpc.is_client_stream", info.IsClientStream),
			zap.Bool("grpc.is_server_stream", info.IsServerStream),
		)

		// Wrap the ServerStream to count messages.
		wrappedStream := &wrappedServerStream{
			ServerStream: ss,
			recvCount:    0,
			sendCount:    0,
		}

		err := handler(srv, wrappedStream)

		duration := time.Since(startTime)

		statusCode := codes.OK
		if err != nil {
			if st, ok := status.FromError(err); ok {
				statusCode = st.Code()
			} else {
				statusCode = codes.Unknown
			}
		}

		if statusCode == codes.OK {
			logger.Info("gRPC stream completed",
				zap.String("grpc.service", service),
				zap.String("grpc.method", method),
				zap.String("grpc.code", statusCode.String()),
				zap.Int("grpc.recv_count", wrappedStream.recvCount),
				zap.Int("grpc.send_count", wrappedStream.sendCount),
				zap.Duration("grpc.duration", duration),
			)
		} else if statusCode == codes.Canceled || statusCode == codes.DeadlineExceeded || statusCode == codes.ResourceExhausted ||
			statusCode == codes.Aborted || statusCode == codes.Unavailable || statusCode == codes.DataLoss {
			logger.Warn("gRPC stream failed",
				zap.String("grpc.service", service),
				zap.String("grpc.method", method),
				zap.String("grpc.code", statusCode.String()),
				zap.Error(err),
				zap.Int("grpc.recv_count", wrappedStream.recvCount),
				zap.Int("grpc.send_count", wrappedStream.sendCount),
				zap.Duration("grpc.duration", duration),
			)
		} else {
			logger.Error("gRPC stream error",
				zap.String("grpc.service", service),
				zap.String("grpc.method", method),
				zap.String("grpc.code", statusCode.String()),
				zap.Error(err),
				zap.Int("grpc.recv_count", wrappedStream.recvCount),
				zap.Int("grpc.send_count", wrappedStream.sendCount),
				zap.Duration("grpc.duration", duration),
			)
		}

		return err
	}
}

// wrappedServerStream wraps a ServerStream to track message counts.
type wrappedServerStream struct {
	grpc.ServerStream
	recvCount int
	sendCount int
}

// RecvMsg counts received messages.
func (w *wrappedServerStream) RecvMsg(m interface{}) error {
	err := w.ServerStream.RecvMsg(m)
	if err == nil {
		w.recvCount++
	}
	return err
}

// SendMsg counts sent messages.
func (w *wrappedServerStream) SendMsg(m interface{}) error {
	err := w.ServerStream.SendMsg(m)
	if err == nil {
		w.sendCount++
	}
	return err
}
