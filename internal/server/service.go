package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "chevron.v1.Bridge"

const (
	methodLoad        = "/" + serviceName + "/Load"
	methodCall        = "/" + serviceName + "/Call"
	methodQueryAudit  = "/" + serviceName + "/QueryAudit"
	methodStreamAudit = "/" + serviceName + "/StreamAudit"
)

// BridgeServer is the chevron.v1.Bridge service. Requests and responses are
// google.protobuf.Struct messages.
type BridgeServer interface {
	Load(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Call(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QueryAudit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamAudit(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// RegisterBridgeServer registers srv with s.
func RegisterBridgeServer(s grpc.ServiceRegistrar, srv BridgeServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Load", Handler: unaryHandler(methodLoad, BridgeServer.Load)},
		{MethodName: "Call", Handler: unaryHandler(methodCall, BridgeServer.Call)},
		{MethodName: "QueryAudit", Handler: unaryHandler(methodQueryAudit, BridgeServer.QueryAudit)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamAudit", Handler: streamAuditHandler, ServerStreams: true},
	},
	Metadata: "chevron/v1/bridge.proto",
}

type unaryMethod func(BridgeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, method unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(BridgeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(BridgeServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamAuditHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BridgeServer).StreamAudit(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}
