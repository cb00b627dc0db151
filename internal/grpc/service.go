package grpc

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified name of the node service
const ServiceName = "minichain.v1.Node"

const (
	methodGetChainInfo     = "GetChainInfo"
	methodGetBlock         = "GetBlock"
	methodGetBlockByHeight = "GetBlockByHeight"
	methodGetBalance       = "GetBalance"
	methodGetMempool       = "GetMempool"
	methodSend             = "Send"
	methodMine             = "Mine"
	methodStartMining      = "StartMining"
	methodStopMining       = "StopMining"
	streamSubscribeBlocks  = "SubscribeBlocks"
)

// NodeServer is the server API of the node service. Composite payloads
// travel as google.protobuf.Struct holding the JSON form of a pkg/types
// view.
type NodeServer interface {
	GetChainInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetBlock(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetBlockByHeight(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error)
	GetBalance(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	GetMempool(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Mine(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	StartMining(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	StopMining(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	SubscribeBlocks(*emptypb.Empty, grpc.ServerStream) error
}

// ServiceDesc describes the node service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodGetChainInfo,
			Handler: unaryHandler(methodGetChainInfo, newEmpty, func(s NodeServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.GetChainInfo(ctx, in)
			}),
		},
		{
			MethodName: methodGetBlock,
			Handler: unaryHandler(methodGetBlock, newString, func(s NodeServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
				return s.GetBlock(ctx, in)
			}),
		},
		{
			MethodName: methodGetBlockByHeight,
			Handler: unaryHandler(methodGetBlockByHeight, newUInt64, func(s NodeServer, ctx context.Context, in *wrapperspb.UInt64Value) (proto.Message, error) {
				return s.GetBlockByHeight(ctx, in)
			}),
		},
		{
			MethodName: methodGetBalance,
			Handler: unaryHandler(methodGetBalance, newString, func(s NodeServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
				return s.GetBalance(ctx, in)
			}),
		},
		{
			MethodName: methodGetMempool,
			Handler: unaryHandler(methodGetMempool, newEmpty, func(s NodeServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.GetMempool(ctx, in)
			}),
		},
		{
			MethodName: methodSend,
			Handler: unaryHandler(methodSend, newStruct, func(s NodeServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
				return s.Send(ctx, in)
			}),
		},
		{
			MethodName: methodMine,
			Handler: unaryHandler(methodMine, newString, func(s NodeServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
				return s.Mine(ctx, in)
			}),
		},
		{
			MethodName: methodStartMining,
			Handler: unaryHandler(methodStartMining, newString, func(s NodeServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
				return s.StartMining(ctx, in)
			}),
		},
		{
			MethodName: methodStopMining,
			Handler: unaryHandler(methodStopMining, newEmpty, func(s NodeServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.StopMining(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamSubscribeBlocks,
			Handler:       subscribeBlocksHandler,
			ServerStreams: true,
		},
	},
}

func newEmpty() *emptypb.Empty           { return new(emptypb.Empty) }
func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newUInt64() *wrapperspb.UInt64Value { return new(wrapperspb.UInt64Value) }
func newStruct() *structpb.Struct        { return new(structpb.Struct) }

// methodHandler is the type of grpc.MethodDesc.Handler
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor) (interface{}, error)

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unaryHandler adapts a typed NodeServer call to a grpc.MethodDesc handler, the
// same shape protoc-gen-go-grpc emits for every unary method.
func unaryHandler[Req proto.Message](method string, newReq func() Req,
	call func(NodeServer, context.Context, Req) (proto.Message, error)) methodHandler {

	return func(srv interface{}, ctx context.Context, dec func(interface{}) error,
		interceptor grpc.UnaryServerInterceptor) (interface{}, error) {

		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(NodeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(NodeServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeBlocksHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(NodeServer).SubscribeBlocks(in, stream)
}

// toStruct converts a JSON-tagged view into a protobuf Struct
func toStruct(view interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(view)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal view")
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, "failed to convert view")
	}
	return s, nil
}

// fromStruct fills a JSON-tagged view from a protobuf Struct
func fromStruct(s *structpb.Struct, view interface{}) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to convert struct")
	}
	if err := json.Unmarshal(data, view); err != nil {
		return errors.Wrap(err, "failed to unmarshal view")
	}
	return nil
}
