// Package admin wires the broker's channel.Manager up to the adminpb gRPC
// service.
package admin

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/fioncat/csync-go/internal/broker/adminpb"
	"github.com/fioncat/csync-go/internal/broker/channel"
)

type server struct {
	mgr *channel.Manager
	now func() time.Time
}

// NewGRPCServer builds a *grpc.Server with the admin service registered,
// using adminpb's JSON codec rather than protobuf wire encoding.
func NewGRPCServer(mgr *channel.Manager) *grpc.Server {
	s := grpc.NewServer(grpc.ForceServerCodec(adminpb.Codec{}))
	adminpb.RegisterAdminServer(s, &server{mgr: mgr, now: time.Now})
	return s
}

func (s *server) ListChannels(ctx context.Context, _ *adminpb.ListChannelsRequest) (*adminpb.ListChannelsResponse, error) {
	infos := s.mgr.Stats()
	resp := &adminpb.ListChannelsResponse{Channels: make([]*adminpb.ChannelInfo, 0, len(infos))}
	now := s.now()
	for _, info := range infos {
		resp.Channels = append(resp.Channels, adminpb.NewChannelInfo(
			info.Device, info.PublisherCount, info.SubscriberCount, info.DirtySubscriberCount, now,
		))
	}
	return resp, nil
}

func (s *server) CloseChannel(ctx context.Context, req *adminpb.CloseChannelRequest) (*adminpb.CloseChannelResponse, error) {
	closed := s.mgr.ForceClose(req.Device)
	return &adminpb.CloseChannelResponse{Closed: closed}, nil
}
