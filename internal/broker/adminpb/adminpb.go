// Package adminpb defines the broker's admin introspection service: a
// small gRPC surface letting an operator list live device channels and
// force-close one. Message types follow the plain-struct style of a
// generated protobuf package (see pb.LedgerServiceClient in the reference
// OCX backend) without a .proto/protoc step; the service is served over a
// JSON grpc codec registered under its own name so the real grpc-go
// transport and dispatch machinery runs unmodified.
package adminpb

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ChannelInfo mirrors channel.Info for wire transport.
type ChannelInfo struct {
	Device               string                 `json:"device"`
	PublisherCount       uint64                 `json:"publisher_count"`
	SubscriberCount      int32                  `json:"subscriber_count"`
	DirtySubscriberCount int32                  `json:"dirty_subscriber_count"`
	SnapshotAt           *timestamppb.Timestamp `json:"snapshot_at"`
}

// NewChannelInfo stamps a ChannelInfo with the current time as its
// snapshot timestamp.
func NewChannelInfo(device string, publisherCount uint64, subs, dirty int, now time.Time) *ChannelInfo {
	return &ChannelInfo{
		Device:               device,
		PublisherCount:       publisherCount,
		SubscriberCount:      int32(subs),
		DirtySubscriberCount: int32(dirty),
		SnapshotAt:           timestamppb.New(now),
	}
}

// ListChannelsRequest takes no parameters; every live channel is returned.
type ListChannelsRequest struct{}

// ListChannelsResponse carries one ChannelInfo per live device channel.
type ListChannelsResponse struct {
	Channels []*ChannelInfo `json:"channels"`
}

// CloseChannelRequest names the device to force-close.
type CloseChannelRequest struct {
	Device string `json:"device"`
}

// CloseChannelResponse reports whether a channel existed to be closed.
type CloseChannelResponse struct {
	Closed bool `json:"closed"`
}

// AdminServer is implemented by the broker side.
type AdminServer interface {
	ListChannels(context.Context, *ListChannelsRequest) (*ListChannelsResponse, error)
	CloseChannel(context.Context, *CloseChannelRequest) (*CloseChannelResponse, error)
}

// AdminClient is implemented by cmd/csyncadm.
type AdminClient interface {
	ListChannels(ctx context.Context, in *ListChannelsRequest, opts ...grpc.CallOption) (*ListChannelsResponse, error)
	CloseChannel(ctx context.Context, in *CloseChannelRequest, opts ...grpc.CallOption) (*CloseChannelResponse, error)
}

const serviceName = "csync.admin.Admin"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListChannels",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(ListChannelsRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(AdminServer).ListChannels(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ListChannels"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AdminServer).ListChannels(ctx, req.(*ListChannelsRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
		{
			MethodName: "CloseChannel",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(CloseChannelRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(AdminServer).CloseChannel(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/CloseChannel"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AdminServer).CloseChannel(ctx, req.(*CloseChannelRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "csync/admin.proto",
}

// RegisterAdminServer registers srv on s under the codec this package uses.
func RegisterAdminServer(s *grpc.Server, srv AdminServer) {
	s.RegisterService(&serviceDesc, srv)
}

type adminClient struct {
	cc *grpc.ClientConn
}

// NewAdminClient wraps an established connection. Callers must dial with
// grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})) (or pass it per
// call) since this service does not use protobuf wire encoding.
func NewAdminClient(cc *grpc.ClientConn) AdminClient {
	return &adminClient{cc: cc}
}

func (c *adminClient) ListChannels(ctx context.Context, in *ListChannelsRequest, opts ...grpc.CallOption) (*ListChannelsResponse, error) {
	out := new(ListChannelsResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ListChannels", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) CloseChannel(ctx context.Context, in *CloseChannelRequest, opts ...grpc.CallOption) (*CloseChannelResponse, error) {
	out := new(CloseChannelResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/CloseChannel", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
