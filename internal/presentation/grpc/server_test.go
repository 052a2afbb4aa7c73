package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	redemptionapp "redeem-server/internal/application/code_redemption"
	"redeem-server/internal/domain/redemption_code"
	"redeem-server/internal/domain/service"
	"redeem-server/internal/infrastructure/config"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
	"redeem-server/internal/presentation/grpc/handler"
)

type stubRedemption struct {
	reason service.Reason
}

func (s *stubRedemption) Redeem(ctx context.Context, req *redemptionapp.RedeemCodeRequest) (*redemptionapp.RedeemCodeResponse, error) {
	return &redemptionapp.RedeemCodeResponse{Code: req.Code, Reason: s.reason}, nil
}

func (s *stubRedemption) Check(ctx context.Context, req *redemptionapp.RedeemCodeRequest) (service.Reason, error) {
	return s.reason, nil
}

type stubLookup struct{}

func (stubLookup) Lookup(ctx context.Context, code string, limit int) (*redemption_code.RedemptionCode, []string, error) {
	return nil, nil, redemption_code.ErrCodeNotFound
}

func (stubLookup) Now() time.Time {
	return time.Now()
}

func testConfig(env string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, GRPCPort: 8081},
		JWT: config.JWTConfig{
			Secret:     "test-secret",
			Expiration: 24 * time.Hour,
			Issuer:     "redeem-server",
		},
		AdminAPI:    config.AdminAPIConfig{Enabled: true, APIKey: "game-server-key"},
		Environment: env,
	}
}

func setupTestServer(t *testing.T, env string) (*Server, *bufconn.Listener) {
	t.Helper()
	listener := bufconn.Listen(1024 * 1024)
	server, err := NewServerWithListener(
		testConfig(env),
		otelinfra.NewNopLogger(),
		&stubRedemption{reason: service.ReasonEligible},
		stubLookup{},
		listener,
		8081,
	)
	require.NoError(t, err)
	require.NotNil(t, server)
	return server, listener
}

func dial(t *testing.T, listener *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func stop(t *testing.T, server *Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
}

func TestNewServerWithListener(t *testing.T) {
	tests := []struct {
		name string
		env  string
	}{
		{name: "正常系: 開発環境ではリフレクション有効", env: "development"},
		{name: "正常系: 本番環境ではリフレクション無効", env: "production"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupTestServer(t, tt.env)
			assert.Equal(t, 8081, server.Port())

			services := server.server.GetServiceInfo()
			assert.Contains(t, services, handler.ServiceName)
			assert.Contains(t, services, "grpc.health.v1.Health")
			_, reflected := services["grpc.reflection.v1.ServerReflection"]
			assert.Equal(t, tt.env == "development", reflected)
		})
	}
}

func TestServer_Serve(t *testing.T) {
	server, listener := setupTestServer(t, "production")
	go func() { _ = server.Start() }()
	defer stop(t, server)
	conn := dial(t, listener)

	t.Run("正常系: ヘルスチェックは認証不要", func(t *testing.T) {
		resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: handler.ServiceName})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	})

	t.Run("正常系: APIキーで引き換えを確認", func(t *testing.T) {
		ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "game-server-key")
		in, err := structpb.NewStruct(map[string]interface{}{"code": "summer", "player_id": uuid.NewString()})
		require.NoError(t, err)
		out := &structpb.Struct{}
		require.NoError(t, conn.Invoke(ctx, handler.FullMethod("Check"), in, out))
		assert.Equal(t, "SUMMER", out.AsMap()["code"])
	})

	t.Run("異常系: 認証情報がない", func(t *testing.T) {
		in, err := structpb.NewStruct(map[string]interface{}{"code": "summer"})
		require.NoError(t, err)
		err = conn.Invoke(context.Background(), handler.FullMethod("Check"), in, &structpb.Struct{})
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("異常系: 不正なAPIキー", func(t *testing.T) {
		ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "wrong")
		in, err := structpb.NewStruct(map[string]interface{}{"code": "summer"})
		require.NoError(t, err)
		err = conn.Invoke(ctx, handler.FullMethod("Check"), in, &structpb.Struct{})
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})
}

func TestServer_Stop(t *testing.T) {
	server, _ := setupTestServer(t, "production")
	go func() { _ = server.Start() }()
	time.Sleep(100 * time.Millisecond)
	stop(t, server)
}

func TestServer_Stop_Timeout(t *testing.T) {
	server, listener := setupTestServer(t, "production")
	go func() { _ = server.Start() }()
	conn := dial(t, listener)
	_, _ = healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()

	// グレースフルシャットダウンが先に完了する場合もある
	if err := server.Stop(ctx); err != nil {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
}
