package api

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"guesthouse/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type fakeStore struct {
	down atomic.Bool
}

func (f *fakeStore) Ping(context.Context) error {
	if f.down.Load() {
		return errors.New("database is closed")
	}
	return nil
}

func startGRPC(t *testing.T, cfg *config.APIConfig, store Pinger) (*GRPCServer, healthpb.HealthClient) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	srv, err := NewGRPCServer(cfg, store, nil, &logger)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	conn, err := grpc.NewClient(net.JoinHostPort("127.0.0.1", port), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func TestGRPCServer_Health(t *testing.T) {
	cfg := testAPIConfig()
	cfg.GRPC = config.APIGRPCConfig{Enabled: true, Reflection: true}
	store := &fakeStore{}
	srv, client := startGRPC(t, &cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.probe(ctx)

	authed := metadata.AppendToOutgoingContext(ctx, "x-api-key", "gateway", "x-api-extra", "secret")

	resp, err := client.Check(authed, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	readonly := metadata.AppendToOutgoingContext(ctx, "x-api-key", "readonly", "x-api-extra", "secret")
	_, err = client.Check(readonly, &healthpb.HealthCheckRequest{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	store.down.Store(true)
	srv.probe(ctx)
	resp, err = client.Check(authed, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestGRPCServer_WatchHealthStops(t *testing.T) {
	cfg := config.APIConfig{}
	store := &fakeStore{}
	srv, client := startGRPC(t, &cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.WatchHealth(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchHealth did not stop")
	}
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
	assert.Error(t, err)

	_, err = buildTLSConfig(config.APITLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"})
	assert.Error(t, err)
}
