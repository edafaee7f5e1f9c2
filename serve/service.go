package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zero-day-ai/modulekit/descriptor"
	"github.com/zero-day-ai/modulekit/registry"
	"github.com/zero-day-ai/modulekit/surface"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "modulekit.v1.ModuleService"

// ModuleServiceServer is the server API of the module management service.
// Requests and replies are well-known protobuf messages; the JSON shape of
// each Struct is described by the Go types in this package.
type ModuleServiceServer interface {
	// ListModules replies {"modules": []ModuleStatus}.
	ListModules(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Enable takes {"module": id} and replies with a Reply.
	Enable(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Disable(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnableWithDependencies(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DisableWithDependents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Surfaces replies with a surface.Snapshot.
	Surfaces(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// SettingsLink takes {"module": id} and replies {"path": p, "found": bool}.
	SettingsLink(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Watch first sends an Event of type snapshot, then one of type change
	// per committed generation, in commit order with none skipped.
	Watch(*emptypb.Empty, grpc.ServerStream) error
}

// ServiceDesc describes ModuleService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ModuleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ListModules", newEmpty, ModuleServiceServer.ListModules),
		unaryMethod("Enable", newStruct, ModuleServiceServer.Enable),
		unaryMethod("Disable", newStruct, ModuleServiceServer.Disable),
		unaryMethod("EnableWithDependencies", newStruct, ModuleServiceServer.EnableWithDependencies),
		unaryMethod("DisableWithDependents", newStruct, ModuleServiceServer.DisableWithDependents),
		unaryMethod("Surfaces", newEmpty, ModuleServiceServer.Surfaces),
		unaryMethod("SettingsLink", newStruct, ModuleServiceServer.SettingsLink),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "modulekit/v1/module_service.proto",
}

func newEmpty() *emptypb.Empty   { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

func unaryMethod[Req proto.Message](
	name string,
	newReq func() Req,
	call func(ModuleServiceServer, context.Context, Req) (*structpb.Struct, error),
) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ModuleServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ModuleServiceServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ModuleServiceServer).Watch(in, stream)
}

// ModuleStatus is one entry of ListModules.
type ModuleStatus struct {
	descriptor.Descriptor
	Enabled bool `json:"enabled"`
}

// Reply is the outcome of a transition RPC.
type Reply struct {
	OK      bool            `json:"ok"`
	Op      registry.Op     `json:"op"`
	Module  string          `json:"module"`
	Reason  registry.Reason `json:"reason"`
	Related []string        `json:"related,omitempty"`
	Changed []string        `json:"changed,omitempty"`
	// Message is the user-facing explanation of a refusal.
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Event types sent on Watch.
const (
	EventSnapshot = "snapshot"
	EventChange   = "change"
)

// Event is one message of the Watch stream. Snapshot events carry only
// Generation and Enabled; change events carry the committed change.
type Event struct {
	Type       string           `json:"type"`
	Generation uint64           `json:"generation"`
	Enabled    []string         `json:"enabled"`
	Change     *registry.Change `json:"change,omitempty"`
}

// Service implements ModuleServiceServer over a registry and its composer.
type Service struct {
	reg      *registry.Registry
	surfaces *surface.Composer
	logger   *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

var _ ModuleServiceServer = (*Service)(nil)

// NewService creates the module service. logger may be nil.
func NewService(reg *registry.Registry, surfaces *surface.Composer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reg:      reg,
		surfaces: surfaces,
		logger:   logger.With("component", "module-service"),
		stopped:  make(chan struct{}),
	}
}

// Register installs svc on srv and ends its Watch streams when srv stops.
func Register(srv *Server, svc *Service) {
	srv.GRPCServer().RegisterService(&ServiceDesc, svc)
	srv.OnStop(svc.Shutdown)
}

// Shutdown ends every open Watch stream.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// ListModules returns every registered module with its flag.
func (s *Service) ListModules(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	state := s.reg.State()
	all := s.reg.All()
	modules := make([]ModuleStatus, 0, len(all))
	for _, d := range all {
		modules = append(modules, ModuleStatus{Descriptor: d, Enabled: state[d.ID]})
	}
	return toStruct(map[string]any{"modules": modules})
}

func (s *Service) Enable(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, in, s.reg.Enable)
}

func (s *Service) Disable(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, in, s.reg.Disable)
}

func (s *Service) EnableWithDependencies(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, in, s.reg.EnableWithDependencies)
}

func (s *Service) DisableWithDependents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, in, s.reg.DisableWithDependents)
}

// transition runs op and maps the result to a Reply. Refusals are replies,
// not RPC errors.
func (s *Service) transition(ctx context.Context, in *structpb.Struct, op func(context.Context, string) registry.Result) (*structpb.Struct, error) {
	id, err := moduleArg(in)
	if err != nil {
		return nil, err
	}
	res := op(ctx, id)
	reply := Reply{
		OK:      res.OK,
		Op:      res.Op,
		Module:  res.Module,
		Reason:  res.Reason,
		Related: res.Related,
		Changed: res.Changed,
		Message: res.Message(),
	}
	if res.Err != nil {
		reply.Error = res.Err.Error()
	}
	return toStruct(reply)
}

// Surfaces returns the composed routes, navigation, widgets and settings.
func (s *Service) Surfaces(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.surfaces.Snapshot())
}

// SettingsLink resolves the settings path of one module.
func (s *Service) SettingsLink(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := moduleArg(in)
	if err != nil {
		return nil, err
	}
	path, found := s.surfaces.SettingsLink(id)
	return toStruct(map[string]any{"path": path, "found": found})
}

// Watch streams registry changes until the client goes away or the service
// shuts down. Every committed generation after the snapshot is sent, in
// order; a slow client makes the stream's queue grow rather than lose deltas.
func (s *Service) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()

	// Subscribe before reading the snapshot so no commit falls in between.
	q := newChangeQueue()
	unsubscribe := s.reg.Subscribe(q.push)
	defer unsubscribe()

	gen, _, state := s.reg.Snapshot()
	if err := sendEvent(stream, Event{Type: EventSnapshot, Generation: gen, Enabled: state.Enabled()}); err != nil {
		return err
	}

	for {
		select {
		case <-s.stopped:
			return status.Error(codes.Unavailable, "server is shutting down")
		case <-ctx.Done():
			return nil
		case <-q.ready:
		}
		for _, change := range q.drain() {
			if change.Generation <= gen {
				continue
			}
			if err := sendEvent(stream, Event{
				Type:       EventChange,
				Generation: change.Generation,
				Enabled:    change.Enabled,
				Change:     &change,
			}); err != nil {
				s.logger.Debug("watch stream send failed", "error", err)
				return err
			}
		}
	}
}

// changeQueue buffers changes for one Watch stream in commit order.
type changeQueue struct {
	mu      sync.Mutex
	pending []registry.Change
	ready   chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{ready: make(chan struct{}, 1)}
}

func (q *changeQueue) push(change registry.Change) {
	q.mu.Lock()
	q.pending = append(q.pending, change)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *changeQueue) drain() []registry.Change {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

func sendEvent(stream grpc.ServerStream, ev Event) error {
	msg, err := toStruct(ev)
	if err != nil {
		return err
	}
	return stream.SendMsg(msg)
}

func moduleArg(in *structpb.Struct) (string, error) {
	v, ok := in.GetFields()["module"]
	if !ok || v.GetStringValue() == "" {
		return "", status.Error(codes.InvalidArgument, "module is required")
	}
	return v.GetStringValue(), nil
}

// toStruct converts a JSON-encodable value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode reply: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode reply: %v", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode reply: %v", err))
	}
	return out, nil
}

// fromStruct decodes a protobuf Struct into v.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
