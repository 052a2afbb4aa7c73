package interceptor

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	authapp "redeem-server/internal/application/auth"
	"redeem-server/internal/infrastructure/config"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

type playerKey struct{}

type playerIdentity struct {
	id   uuid.UUID
	name string
}

// Player トークンで認証されたプレイヤーを返す
func Player(ctx context.Context) (uuid.UUID, string, bool) {
	p, ok := ctx.Value(playerKey{}).(playerIdentity)
	if !ok {
		return uuid.Nil, "", false
	}
	return p.id, p.name, true
}

// AuthInterceptor プレイヤーJWT認証インターセプター。
// APIKeyInterceptorで認証済みの呼び出しと、ヘルスチェックは検証しない。
func AuthInterceptor(cfg *config.JWTConfig, logger *otelinfra.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if Trusted(ctx) || strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		authHeaders := md.Get("authorization")
		if len(authHeaders) == 0 {
			logger.Warn(ctx, "Missing credentials", map[string]interface{}{
				"method": info.FullMethod,
			})
			return nil, status.Error(codes.Unauthenticated, "missing authorization or x-api-key")
		}

		tokenString, ok := strings.CutPrefix(authHeaders[0], "Bearer ")
		if !ok || tokenString == "" {
			logger.Warn(ctx, "Invalid authorization header format", nil)
			return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
		}

		claims, err := authapp.ParseToken(cfg, tokenString)
		if err != nil {
			logger.Warn(ctx, "Invalid token", map[string]interface{}{
				"error":  err.Error(),
				"method": info.FullMethod,
			})
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		id, _ := claims.PlayerID()

		ctx = context.WithValue(ctx, playerKey{}, playerIdentity{id: id, name: claims.PlayerName})
		return handler(ctx, req)
	}
}
