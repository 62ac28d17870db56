package clusterrpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/MeridianExplorer/noobaa-core/pkg/log"
)

const serviceName = "clusterrpc.Redirector"

// reloadServer is the handler interface hand-registered against serviceDesc.
// There is no protoc step: structpb.Struct is a ready-made proto.Message, so
// the wire format needs no generated code.
type reloadServer interface {
	Reload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*reloadServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Reload",
			Handler:    reloadHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clusterrpc.proto",
}

func reloadHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(reloadServer).Reload(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Reload"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(reloadServer).Reload(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCRedirector broadcasts reload notifications to a fixed set of peer
// addresses over a hand-registered gRPC service, and locally fans out both
// self-originated and received notifications via an embedded LocalBroker.
type GRPCRedirector struct {
	selfAddr string
	peers    []string
	local    *LocalBroker
	dialTO   time.Duration

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewGRPCRedirector creates a redirector that broadcasts to peerAddrs.
// selfAddr identifies this process so Broadcast can deliver to itself
// without a network round trip.
func NewGRPCRedirector(selfAddr string, peerAddrs []string) *GRPCRedirector {
	local := NewLocalBroker()
	local.Start()

	return &GRPCRedirector{
		selfAddr: selfAddr,
		peers:    peerAddrs,
		local:    local,
		dialTO:   5 * time.Second,
		conns:    make(map[string]*grpc.ClientConn),
	}
}

// Register attaches this redirector's service to a gRPC server.
func (g *GRPCRedirector) Register(server *grpc.Server) {
	server.RegisterService(&serviceDesc, g)
}

// Reload implements reloadServer: it is invoked by gRPC when a peer sends
// this process a reload notification.
func (g *GRPCRedirector) Reload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	g.local.Broadcast(structToReloadMessage(req))
	return &structpb.Struct{}, nil
}

// Broadcast sends the reload notification to every peer and to self.
// Peer failures are logged and do not abort the broadcast to the remaining
// peers — cluster notifications are best-effort per the reconnect/refresh
// self-healing policy.
func (g *GRPCRedirector) Broadcast(msg ReloadMessage) error {
	g.local.Broadcast(msg)

	payload, err := reloadMessageToStruct(msg)
	if err != nil {
		return fmt.Errorf("clusterrpc: encode reload message: %w", err)
	}

	rpcLog := log.WithComponent("clusterrpc")
	for _, addr := range g.peers {
		if addr == g.selfAddr {
			continue
		}
		conn, err := g.dial(addr)
		if err != nil {
			rpcLog.Warn().Str("peer", addr).Err(err).Msg("failed to dial peer for reload broadcast")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), g.dialTO)
		out := new(structpb.Struct)
		err = conn.Invoke(ctx, "/"+serviceName+"/Reload", payload, out)
		cancel()
		if err != nil {
			rpcLog.Warn().Str("peer", addr).Err(err).Msg("reload broadcast to peer failed")
		}
	}

	return nil
}

// Subscribe returns a channel receiving every notification delivered to or
// originated by this process.
func (g *GRPCRedirector) Subscribe() <-chan ReloadMessage {
	return g.local.Subscribe()
}

// Close releases all outbound peer connections.
func (g *GRPCRedirector) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var firstErr error
	for addr, conn := range g.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(g.conns, addr)
	}
	g.local.Stop()
	return firstErr
}

func (g *GRPCRedirector) dial(addr string) (*grpc.ClientConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if conn, ok := g.conns[addr]; ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	g.conns[addr] = conn
	return conn, nil
}

func reloadMessageToStruct(msg ReloadMessage) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"method_api":  msg.MethodAPI,
		"method_name": msg.MethodName,
		"target":      msg.Target,
	})
}

func structToReloadMessage(s *structpb.Struct) ReloadMessage {
	if s == nil {
		return ReloadMessage{}
	}
	fields := s.AsMap()
	msg := ReloadMessage{}
	if v, ok := fields["method_api"].(string); ok {
		msg.MethodAPI = v
	}
	if v, ok := fields["method_name"].(string); ok {
		msg.MethodName = v
	}
	if v, ok := fields["target"].(string); ok {
		msg.Target = v
	}
	return msg
}
