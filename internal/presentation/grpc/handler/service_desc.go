package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName gRPCサービス名
const ServiceName = "redeem.v1.RedeemService"

// RedeemServiceServer 引き換えサービスのサーバー実装。
// メッセージはgoogle.protobuf.Structで表現する。
type RedeemServiceServer interface {
	Redeem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Lookup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRedeemServiceServer サービスをgRPCサーバーに登録
func RegisterRedeemServiceServer(s grpc.ServiceRegistrar, srv RedeemServiceServer) {
	s.RegisterService(&RedeemServiceDesc, srv)
}

// RedeemServiceDesc 引き換えサービスの定義
var RedeemServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RedeemServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Redeem", Handler: unaryHandler(RedeemServiceServer.Redeem, "Redeem")},
		{MethodName: "Check", Handler: unaryHandler(RedeemServiceServer.Check, "Check")},
		{MethodName: "Lookup", Handler: unaryHandler(RedeemServiceServer.Lookup, "Lookup")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "redeem/v1/redeem.proto",
}

// FullMethod メソッドの完全名
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type unaryMethod func(RedeemServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fn unaryMethod, method string) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(RedeemServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return fn(srv.(RedeemServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}
