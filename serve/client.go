package serve

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zero-day-ai/modulekit/surface"
)

// Client calls a remote ModuleService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection. The caller owns cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in any, reply any) error {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return err
	}
	return fromStruct(out, reply)
}

func moduleRequest(id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{"module": structpb.NewStringValue(id)}}
}

// ListModules returns every registered module with its flag.
func (c *Client) ListModules(ctx context.Context) ([]ModuleStatus, error) {
	var reply struct {
		Modules []ModuleStatus `json:"modules"`
	}
	if err := c.invoke(ctx, "ListModules", &emptypb.Empty{}, &reply); err != nil {
		return nil, err
	}
	return reply.Modules, nil
}

func (c *Client) Enable(ctx context.Context, id string) (Reply, error) {
	return c.transition(ctx, "Enable", id)
}

func (c *Client) Disable(ctx context.Context, id string) (Reply, error) {
	return c.transition(ctx, "Disable", id)
}

func (c *Client) EnableWithDependencies(ctx context.Context, id string) (Reply, error) {
	return c.transition(ctx, "EnableWithDependencies", id)
}

func (c *Client) DisableWithDependents(ctx context.Context, id string) (Reply, error) {
	return c.transition(ctx, "DisableWithDependents", id)
}

func (c *Client) transition(ctx context.Context, method, id string) (Reply, error) {
	var reply Reply
	err := c.invoke(ctx, method, moduleRequest(id), &reply)
	return reply, err
}

// Surfaces returns the composed surfaces of the remote registry.
func (c *Client) Surfaces(ctx context.Context) (surface.Snapshot, error) {
	var snap surface.Snapshot
	err := c.invoke(ctx, "Surfaces", &emptypb.Empty{}, &snap)
	return snap, err
}

// SettingsLink resolves the settings path of one module.
func (c *Client) SettingsLink(ctx context.Context, id string) (string, bool, error) {
	var reply struct {
		Path  string `json:"path"`
		Found bool   `json:"found"`
	}
	if err := c.invoke(ctx, "SettingsLink", moduleRequest(id), &reply); err != nil {
		return "", false, err
	}
	return reply.Path, reply.Found, nil
}

// WatchStream receives Watch events.
type WatchStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the server ends the
// stream cleanly.
func (w *WatchStream) Recv() (Event, error) {
	msg := new(structpb.Struct)
	if err := w.stream.RecvMsg(msg); err != nil {
		return Event{}, err
	}
	var ev Event
	err := fromStruct(msg, &ev)
	return ev, err
}

// Watch opens a change stream. The first event is always a snapshot.
// Cancel ctx to close it.
func (c *Client) Watch(ctx context.Context) (*WatchStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Watch")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchStream{stream: stream}, nil
}
