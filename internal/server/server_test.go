package server

import (
	"context"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/chevron-bridge/internal/audit"
	"github.com/glinharesb/chevron-bridge/internal/bridge"
	"github.com/glinharesb/chevron-bridge/internal/crypto"
	"github.com/glinharesb/chevron-bridge/internal/interceptor"
	"github.com/glinharesb/chevron-bridge/internal/software"
)

const testToken = "test-token"

type env struct {
	client *Client
	bridge *bridge.Bridge
	audit  *audit.Logger
}

func setup(t *testing.T) env {
	t.Helper()

	auditLogger := audit.NewLogger(256, nil)
	b := bridge.New(bridge.WithObserver(auditLogger.Observe))
	b.Install(software.New(nil, software.WithSealCost(crypto.MinCost)).Handle())

	logger := zap.NewNop()
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptor.RecoveryUnary(logger),
			interceptor.LoggingUnary(logger),
			interceptor.AuthUnary(testToken),
		),
		grpc.ChainStreamInterceptor(
			interceptor.RecoveryStream(logger),
			interceptor.LoggingStream(logger),
			interceptor.AuthStream(testToken),
		),
	)
	s := New(b, auditLogger, logger)
	RegisterBridgeServer(srv, s)

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)

	ctx, cancel := context.WithCancel(context.Background())
	hostDone := make(chan struct{})
	go func() {
		defer close(hostDone)
		s.Host(ctx)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
		cancel()
		<-hostDone
		auditLogger.Close()
	})
	return env{client: NewClient(conn), bridge: b, audit: auditLogger}
}

func authed(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+testToken)
}

func call(t *testing.T, c *Client, op string, args ...any) CallResult {
	t.Helper()
	res, err := c.Call(authed(t), op, args)
	require.NoError(t, err, op)
	require.Empty(t, res.Err, op)
	return res
}

func TestCallRoundTrip(t *testing.T) {
	e := setup(t)

	res := call(t, e.client, "generateKey", "pw", "alice", 2048)
	assert.Equal(t, "GenerateKey", res.Op)
	assert.NotEmpty(t, res.TaskID)
	keyData, ok := res.Value.(string)
	require.True(t, ok)
	assert.Contains(t, keyData, crypto.BlockPrivateKey)

	res = call(t, e.client, "getKeyFingerprints", keyData)
	assert.Empty(t, res.TaskID, "sync calls have no task")
	fps, ok := res.Value.([]any)
	require.True(t, ok)
	require.Len(t, fps, 1)
	fp := fps[0].(string)

	res = call(t, e.client, "loadKey", keyData)
	assert.Nil(t, res.Value)
	call(t, e.client, "unlockKey", fp, "pw")

	b64 := base64.StdEncoding.EncodeToString([]byte("payload"))
	res = call(t, e.client, "signData", b64, fp)
	signature := res.Value.(string)

	res = call(t, e.client, "verifySignature", b64, signature)
	assert.Equal(t, true, res.Value)

	other := base64.StdEncoding.EncodeToString([]byte("tampered"))
	res = call(t, e.client, "VerifyBase64DataSignature", other, signature)
	assert.Equal(t, false, res.Value)

	first := call(t, e.client, "getPublicKey", fp)
	second := call(t, e.client, "getPublicKey", fp)
	assert.Equal(t, first.Value, second.Value)
	assert.Contains(t, first.Value, crypto.BlockPublicKey)
}

func TestCallProviderErrorIsData(t *testing.T) {
	e := setup(t)

	res, err := e.client.Call(authed(t), "unlockKey", []any{"ABCDEF0123456789", "pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Err)
	assert.Nil(t, res.Value)

	res, err = e.client.Call(authed(t), "getPublicKey", []any{"ABCDEF0123456789"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Err)
}

func TestCallArgumentErrors(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name string
		op   string
		args []any
	}{
		{"unknown op", "destroyKeys", nil},
		{"too few", "generateKey", []any{"pw", "id"}},
		{"too many", "getPublicKey", []any{"a", "b"}},
		{"wrong kind", "generateKey", []any{"pw", "id", "2048"}},
		{"number for string", "loadKey", []any{42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.client.Call(authed(t), tt.op, tt.args)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestLoad(t *testing.T) {
	e := setup(t)
	before := e.bridge.Handle()

	_, err := e.client.Load(authed(t), "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = e.client.Load(authed(t), t.TempDir())
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Same(t, before, e.bridge.Handle(), "failed load keeps the active provider")

	call(t, e.client, "generateKey", "pw", "still-works", 2048)

	require.Eventually(t, func() bool {
		entries, _ := e.audit.Query(context.Background(), audit.Filter{Operation: "Load"})
		return len(entries) == 1 && entries[0].Status == "ERROR" && entries[0].Peer != ""
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAuthRequired(t *testing.T) {
	e := setup(t)

	_, err := e.client.Call(context.Background(), "getPublicKey", []any{"x"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer wrong")
	_, err = e.client.QueryAudit(ctx, audit.Filter{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestQueryAudit(t *testing.T) {
	e := setup(t)

	res := call(t, e.client, "generateKey", "pw", "bob", 4096)
	_, err := e.client.Call(authed(t), "unlockKey", []any{"0000000000000000", "pw"})
	require.NoError(t, err)

	var entries []audit.Entry
	require.Eventually(t, func() bool {
		entries, err = e.client.QueryAudit(authed(t), audit.Filter{Operation: "GenerateKey"})
		return err == nil && len(entries) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, res.TaskID, entries[0].TaskID)
	assert.Equal(t, "OK", entries[0].Status)
	assert.Equal(t, "async", entries[0].Metadata["style"])
	assert.Equal(t, software.HandlePath, entries[0].Provider)
	assert.False(t, entries[0].Timestamp.IsZero())

	require.Eventually(t, func() bool {
		entries, err = e.client.QueryAudit(authed(t), audit.Filter{Status: "ERROR", Limit: 5})
		return err == nil && len(entries) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "UnlockKey", entries[0].Operation)
	assert.NotEmpty(t, entries[0].Metadata["error"])

	entries, err = e.client.QueryAudit(authed(t), audit.Filter{Start: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueryAuditRejectsBadTime(t *testing.T) {
	e := setup(t)

	req, err := structpb.NewStruct(map[string]any{"start": "yesterday"})
	require.NoError(t, err)
	err = e.client.cc.Invoke(authed(t), methodQueryAudit, req, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStreamAudit(t *testing.T) {
	e := setup(t)
	ctx := authed(t)

	stream, err := e.client.StreamAudit(ctx, audit.Filter{Operation: "GetPublicKey"})
	require.NoError(t, err)

	// The subscription is registered asynchronously on the server, so keep
	// producing entries until one arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.client.Call(ctx, "getKeyFingerprints", []any{""})
				e.client.Call(ctx, "getPublicKey", []any{"0000000000000000"})
			}
		}
	}()

	entry, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "GetPublicKey", entry.Operation)
	assert.Equal(t, "ERROR", entry.Status)
	assert.Equal(t, "sync", entry.Metadata["style"])
	assert.NotEmpty(t, entry.ID)
}
