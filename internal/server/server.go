// Package server exposes the bridge over gRPC. The server is the bridge's
// host: it runs the host loop on a dedicated goroutine and turns each async
// completion into the reply of the Call that submitted it.
package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/chevron-bridge/internal/audit"
	"github.com/glinharesb/chevron-bridge/internal/bridge"
	"github.com/glinharesb/chevron-bridge/internal/provider"
)

type Server struct {
	bridge *bridge.Bridge
	audit  *audit.Logger
	logger *zap.Logger
}

func New(b *bridge.Bridge, a *audit.Logger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{bridge: b, audit: a, logger: logger}
}

// Host runs the bridge's host loop until ctx ends. Async calls do not
// complete while Host is not running.
func (s *Server) Host(ctx context.Context) error {
	loop := s.bridge.Loop()
	loop.Ref()
	defer loop.Unref()

	s.logger.Info("host loop started")
	err := s.bridge.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	s.logger.Info("host loop stopped", zap.Int("pending", loop.Pending()))
	return err
}

// Load resolves a provider library in the directory named by "dir".
func (s *Server) Load(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dir := stringField(req, "dir")
	if dir == "" {
		return nil, status.Error(codes.InvalidArgument, "dir is required")
	}

	start := time.Now()
	_, err := s.bridge.Load(dir)
	entry := audit.Entry{
		Operation: "Load",
		Status:    "OK",
		Peer:      peerAddr(ctx),
		Duration:  time.Since(start),
		Metadata:  map[string]string{"dir": dir},
	}
	if err != nil {
		entry.Status = "ERROR"
		entry.Metadata["error"] = err.Error()
	} else {
		entry.Provider = s.bridge.Handle().Path()
	}
	s.audit.Log(entry)

	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"loaded":   true,
		"provider": entry.Provider,
	})
}

type result struct {
	err   error
	value any
}

// Call runs the operation named by "op" with the arguments in the "args"
// list. A provider failure is not an RPC error: it is returned in the
// "error" field of the response.
func (s *Server) Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := stringField(req, "op")
	op, ok := bridge.ParseOp(name)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown operation %q", name)
	}
	args := req.GetFields()["args"].GetListValue().AsSlice()
	if args == nil {
		args = []any{}
	}

	resp := map[string]any{"op": op.String()}
	if op.Style() == bridge.Sync {
		out, err := s.bridge.CallSync(op, args)
		if err := respond(resp, op, out, err); err != nil {
			return nil, err
		}
		return structpb.NewStruct(resp)
	}

	done := make(chan result, 1)
	id, err := s.bridge.Submit(op, args, func(err error, value any) {
		done <- result{err: err, value: value}
	})
	if err != nil {
		return nil, toStatus(err)
	}
	resp["task_id"] = id

	select {
	case r := <-done:
		if err := respond(resp, op, r.value, r.err); err != nil {
			return nil, err
		}
		return structpb.NewStruct(resp)
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

// respond fills resp with the value or provider error of a completed call.
// Any other error is returned as a gRPC status.
func respond(resp map[string]any, op bridge.Op, value any, err error) error {
	var perr *bridge.ProviderError
	switch {
	case errors.As(err, &perr):
		resp["error"] = perr.Message
		return nil
	case err != nil:
		return toStatus(err)
	}

	switch v := value.(type) {
	case nil:
	case string:
		if op == bridge.OpGetKeyFingerprints {
			fps := bridge.SplitFingerprints(v)
			list := make([]any, len(fps))
			for i, fp := range fps {
				list[i] = fp
			}
			resp["value"] = list
		} else {
			resp["value"] = v
		}
	default:
		resp["value"] = v
	}
	return nil
}

// QueryAudit returns audit entries matching the filter fields operation,
// task_id, status, start, end (RFC 3339) and limit.
func (s *Server) QueryAudit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := filterFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	entries, err := s.audit.Query(ctx, f)
	if err != nil {
		s.logger.Error("audit query", zap.Error(err))
		return nil, status.Error(codes.Internal, "audit query failed")
	}

	list := make([]any, len(entries))
	for i, e := range entries {
		list[i] = entryToMap(e)
	}
	return structpb.NewStruct(map[string]any{"entries": list})
}

// StreamAudit sends audit entries as they are recorded. The operation and
// status request fields narrow the stream.
func (s *Server) StreamAudit(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	f := audit.Filter{
		Operation: stringField(req, "operation"),
		Status:    stringField(req, "status"),
	}

	sub := s.audit.Subscribe()
	defer s.audit.Unsubscribe(sub)

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case entry, ok := <-sub.C:
			if !ok {
				return nil
			}
			if (f.Operation != "" && entry.Operation != f.Operation) || (f.Status != "" && entry.Status != f.Status) {
				continue
			}
			msg, err := entryToStruct(entry)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func toStatus(err error) error {
	var argErr *bridge.ArgumentError
	var resErr *bridge.ResolutionError
	switch {
	case errors.As(err, &argErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &resErr), errors.Is(err, provider.ErrProviderNotFound):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}
