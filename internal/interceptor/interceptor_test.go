package interceptor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var info = &grpc.UnaryServerInfo{FullMethod: "/chevron.v1.Bridge/Call"}

func okHandler(context.Context, any) (any, error) { return "ok", nil }

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func TestAuthUnary(t *testing.T) {
	auth := AuthUnary("secret")

	resp, err := auth(withToken("secret"), nil, info, okHandler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"no metadata", context.Background()},
		{"no header", metadata.NewIncomingContext(context.Background(), metadata.MD{})},
		{"wrong token", withToken("guess")},
		{"no bearer prefix", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "secret"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth(tt.ctx, nil, info, okHandler)
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	resp, err := AuthUnary("")(context.Background(), nil, info, okHandler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeStream) Context() context.Context { return s.ctx }

func TestAuthStream(t *testing.T) {
	sinfo := &grpc.StreamServerInfo{FullMethod: "/chevron.v1.Bridge/StreamAudit"}
	called := false
	handler := func(any, grpc.ServerStream) error { called = true; return nil }

	err := AuthStream("secret")(nil, fakeStream{ctx: context.Background()}, sinfo, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.False(t, called)

	err = AuthStream("secret")(nil, fakeStream{ctx: withToken("secret")}, sinfo, handler)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRateLimitUnary(t *testing.T) {
	limit := RateLimitUnary(2)

	_, err := limit(context.Background(), nil, info, okHandler)
	require.NoError(t, err)
	_, err = limit(context.Background(), nil, info, okHandler)
	require.NoError(t, err)

	_, err = limit(context.Background(), nil, info, okHandler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestRateLimitDisabled(t *testing.T) {
	limit := RateLimitUnary(0)
	for range 100 {
		_, err := limit(context.Background(), nil, info, okHandler)
		require.NoError(t, err)
	}
}

func TestLoggingUnary(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging := LoggingUnary(zap.New(core))

	_, err := logging(context.Background(), nil, info, okHandler)
	require.NoError(t, err)
	_, err = logging(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "bad")
	})
	require.Error(t, err)
	_, err = logging(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "OK", entries[0].ContextMap()["code"])
	assert.Equal(t, "/chevron.v1.Bridge/Call", entries[0].ContextMap()["method"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "Unknown", entries[2].ContextMap()["code"])
}

func TestRecoveryUnary(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	recovery := RecoveryUnary(zap.New(core))

	_, err := recovery(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("handler exploded")
	})
	assert.Equal(t, codes.Internal, status.Code(err))

	entries := logs.FilterMessage("panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "handler exploded", entries[0].ContextMap()["panic"])
}

func TestRecoveryStream(t *testing.T) {
	recovery := RecoveryStream(zap.NewNop())
	sinfo := &grpc.StreamServerInfo{FullMethod: "/chevron.v1.Bridge/StreamAudit"}

	err := recovery(nil, fakeStream{ctx: context.Background()}, sinfo, func(any, grpc.ServerStream) error {
		panic("stream exploded")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}
