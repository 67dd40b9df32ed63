package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "clinic.v1.SchedulingService"

// SchedulingServiceServer is the server API of clinic.v1.SchedulingService.
// Every method takes and returns a google.protobuf.Struct whose fields are
// described on the SchedulingServer methods.
type SchedulingServiceServer interface {
	BookReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RescheduleReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateReservationTimes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListReservations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateCandidates(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReplacePeriods(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPeriods(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSettings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateSettings(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SchedulingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var methods = map[string]unaryMethod{
	"BookReservation":        SchedulingServiceServer.BookReservation,
	"RescheduleReservation":  SchedulingServiceServer.RescheduleReservation,
	"UpdateReservationTimes": SchedulingServiceServer.UpdateReservationTimes,
	"CancelReservation":      SchedulingServiceServer.CancelReservation,
	"ListReservations":       SchedulingServiceServer.ListReservations,
	"GenerateCandidates":     SchedulingServiceServer.GenerateCandidates,
	"ReplacePeriods":         SchedulingServiceServer.ReplacePeriods,
	"ListPeriods":            SchedulingServiceServer.ListPeriods,
	"GetSettings":            SchedulingServiceServer.GetSettings,
	"UpdateSettings":         SchedulingServiceServer.UpdateSettings,
}

// ServiceDesc is registered by hand; there is no generated stub for this service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("BookReservation"),
		methodDesc("RescheduleReservation"),
		methodDesc("UpdateReservationTimes"),
		methodDesc("CancelReservation"),
		methodDesc("ListReservations"),
		methodDesc("GenerateCandidates"),
		methodDesc("ReplacePeriods"),
		methodDesc("ListPeriods"),
		methodDesc("GetSettings"),
		methodDesc("UpdateSettings"),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clinic/v1/scheduling.proto",
}

func methodDesc(name string) grpc.MethodDesc {
	call := methods[name]
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(SchedulingServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// SchedulingClient calls clinic.v1.SchedulingService over conn.
type SchedulingClient struct {
	conn grpc.ClientConnInterface
}

func NewSchedulingClient(conn grpc.ClientConnInterface) *SchedulingClient {
	return &SchedulingClient{conn: conn}
}

// Call invokes method with a request built from fields.
func (c *SchedulingClient) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
