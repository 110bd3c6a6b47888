package admin

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fioncat/csync-go/internal/broker/adminpb"
	"github.com/fioncat/csync-go/internal/broker/channel"
	"github.com/stretchr/testify/require"
)

func TestAdminListAndCloseChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := channel.New(ctx)
	mgr.Register("laptop")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	grpcServer := NewGRPCServer(mgr)
	go grpcServer.Serve(ln)
	defer grpcServer.Stop()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	conn, err := grpc.DialContext(dialCtx, ln.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(adminpb.Codec{})),
		grpc.WithBlock(),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := adminpb.NewAdminClient(conn)

	listResp, err := client.ListChannels(ctx, &adminpb.ListChannelsRequest{})
	require.NoError(t, err)
	require.Len(t, listResp.Channels, 1)
	require.Equal(t, "laptop", listResp.Channels[0].Device)

	closeResp, err := client.CloseChannel(ctx, &adminpb.CloseChannelRequest{Device: "laptop"})
	require.NoError(t, err)
	require.True(t, closeResp.Closed)

	listResp2, err := client.ListChannels(ctx, &adminpb.ListChannelsRequest{})
	require.NoError(t, err)
	require.Empty(t, listResp2.Channels)
}
