package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/chevron-bridge/internal/audit"
)

// Client calls a remote chevron.v1.Bridge service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// CallResult is the reply to a Call. Err holds the provider's error message
// when the provider failed the operation.
type CallResult struct {
	Op     string
	TaskID string
	Value  any
	Err    string
}

// Load asks the server to load a provider library from dir and returns the
// path of the loaded provider.
func (c *Client) Load(ctx context.Context, dir string, opts ...grpc.CallOption) (string, error) {
	req, err := structpb.NewStruct(map[string]any{"dir": dir})
	if err != nil {
		return "", err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodLoad, req, resp, opts...); err != nil {
		return "", err
	}
	return stringField(resp, "provider"), nil
}

// Call runs op on the server. args must be strings or numbers.
func (c *Client) Call(ctx context.Context, op string, args []any, opts ...grpc.CallOption) (CallResult, error) {
	req, err := structpb.NewStruct(map[string]any{"op": op, "args": args})
	if err != nil {
		return CallResult{}, fmt.Errorf("encode call: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodCall, req, resp, opts...); err != nil {
		return CallResult{}, err
	}
	return CallResult{
		Op:     stringField(resp, "op"),
		TaskID: stringField(resp, "task_id"),
		Value:  resp.GetFields()["value"].AsInterface(),
		Err:    stringField(resp, "error"),
	}, nil
}

func (c *Client) QueryAudit(ctx context.Context, f audit.Filter, opts ...grpc.CallOption) ([]audit.Entry, error) {
	req, err := structpb.NewStruct(filterToMap(f))
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodQueryAudit, req, resp, opts...); err != nil {
		return nil, err
	}

	values := resp.GetFields()["entries"].GetListValue().GetValues()
	entries := make([]audit.Entry, 0, len(values))
	for _, v := range values {
		e, err := entryFromStruct(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AuditStream receives entries from StreamAudit.
type AuditStream struct {
	stream grpc.ServerStreamingClient[structpb.Struct]
}

func (s *AuditStream) Recv() (audit.Entry, error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return audit.Entry{}, err
	}
	return entryFromStruct(msg)
}

// StreamAudit subscribes to new audit entries. Only the Operation and Status
// fields of f apply.
func (c *Client) StreamAudit(ctx context.Context, f audit.Filter, opts ...grpc.CallOption) (*AuditStream, error) {
	req, err := structpb.NewStruct(filterToMap(audit.Filter{Operation: f.Operation, Status: f.Status}))
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], methodStreamAudit, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return &AuditStream{stream: x}, nil
}
