package interceptor

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"redeem-server/internal/infrastructure/config"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

type trustedKey struct{}

// Trusted APIキーで認証されたゲームサーバーからの呼び出しかどうか
func Trusted(ctx context.Context) bool {
	v, _ := ctx.Value(trustedKey{}).(bool)
	return v
}

// APIKeyInterceptor x-api-keyメタデータを検証するインターセプター。
// キーがない場合は後続のAuthInterceptorに任せる。
func APIKeyInterceptor(cfg *config.AdminAPIConfig, logger *otelinfra.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		apiKeys := md.Get("x-api-key")
		if len(apiKeys) == 0 {
			return handler(ctx, req)
		}

		if !cfg.Enabled {
			logger.Warn(ctx, "Admin API is disabled", map[string]interface{}{
				"method": info.FullMethod,
			})
			return nil, status.Error(codes.PermissionDenied, "admin API is disabled")
		}
		if !cfg.ValidKey(apiKeys[0]) {
			logger.Warn(ctx, "Invalid API key", map[string]interface{}{
				"method": info.FullMethod,
			})
			return nil, status.Error(codes.Unauthenticated, "invalid API key")
		}
		if clientIP := clientIP(ctx, md); !cfg.AllowsIP(clientIP) {
			logger.Warn(ctx, "IP address not allowed", map[string]interface{}{
				"ip":     clientIP,
				"method": info.FullMethod,
			})
			return nil, status.Error(codes.PermissionDenied, "IP address not allowed")
		}

		return handler(context.WithValue(ctx, trustedKey{}, true), req)
	}
}

// clientIP x-forwarded-for, x-real-ip, 接続元アドレスの順にクライアントのIPアドレスを返す
func clientIP(ctx context.Context, md metadata.MD) string {
	if forwardedFor := md.Get("x-forwarded-for"); len(forwardedFor) > 0 {
		first, _, _ := strings.Cut(forwardedFor[0], ",")
		return strings.TrimSpace(first)
	}
	if realIP := md.Get("x-real-ip"); len(realIP) > 0 {
		return strings.TrimSpace(realIP[0])
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return ""
}
