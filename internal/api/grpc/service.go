package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceDesc describes matching.v1.Auction. Messages are well-known types so no
// generated code is needed on either side.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuctionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "GetOrderbook", Handler: getOrderbookHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "matching/v1/auction.proto",
}

const (
	submitMethod       = "/" + ServiceName + "/Submit"
	getOrderbookMethod = "/" + ServiceName + "/GetOrderbook"
	subscribeMethod    = "/" + ServiceName + "/Subscribe"
)

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuctionServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AuctionServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getOrderbookHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuctionServer).GetOrderbook(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getOrderbookMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AuctionServer).GetOrderbook(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, st grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := st.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AuctionServer).Subscribe(in, st)
}

// Client calls matching.v1.Auction over cc.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, submitMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrderbook(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getOrderbookMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// EventStream receives events from Subscribe.
type EventStream struct {
	grpc.ClientStream
}

func (s *EventStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) Subscribe(ctx context.Context, opts ...grpc.CallOption) (*EventStream, error) {
	st, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], subscribeMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := st.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := st.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{st}, nil
}
