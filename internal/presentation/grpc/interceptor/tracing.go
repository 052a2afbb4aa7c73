package interceptor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// TracerName gRPCサーバーのトレーサー名
const TracerName = "redeem-server/grpc"

// metadataCarrier gRPCメタデータをTextMapCarrierとして扱う
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// TracingInterceptor サーバースパンを作成し、呼び出し結果を記録するインターセプター
func TracingInterceptor(logger *otelinfra.Logger) grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(TracerName)
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		ctx = otel.GetTextMapPropagator().Extract(ctx, metadataCarrier(md.Copy()))
		ctx, span := tracer.Start(ctx, info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("rpc.system", "grpc"), attribute.String("rpc.method", info.FullMethod)),
		)
		defer span.End()

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))

		fields := map[string]interface{}{
			"method":      info.FullMethod,
			"status_code": code.String(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		switch code {
		case codes.OK:
			logger.Info(ctx, "gRPC call completed", fields)
		case codes.Internal, codes.Unavailable, codes.Unknown:
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			logger.Error(ctx, "gRPC call failed", err, fields)
		default:
			logger.Warn(ctx, "gRPC call rejected", fields)
		}
		return resp, err
	}
}
