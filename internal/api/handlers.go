package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"clinicbook/internal/scheduling"
	"clinicbook/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const bookingServiceName = "clinicbook.v1.BookingService"

// BookingGRPCService serves the booking operations over gRPC. Messages are
// google.protobuf.Struct documents shaped like the HTTP JSON bodies.
type BookingGRPCService struct {
	booking BookingAPI
	catalog CatalogAPI
}

func NewBookingGRPCService(booking BookingAPI, catalog CatalogAPI) *BookingGRPCService {
	return &BookingGRPCService{booking: booking, catalog: catalog}
}

// BookingServiceServer is the server API of clinicbook.v1.BookingService.
type BookingServiceServer interface {
	ListProfessionals(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListServices(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAvailableSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpcomingAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Agenda(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structHandler func(s *BookingGRPCService, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, h structHandler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(*BookingGRPCService)
			if interceptor == nil {
				return h(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + bookingServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(svc, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// BookingServiceDesc describes the service for grpc.Server.RegisterService.
var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ListProfessionals", (*BookingGRPCService).ListProfessionals),
		unaryMethod("ListServices", (*BookingGRPCService).ListServices),
		unaryMethod("GetAvailableSlots", (*BookingGRPCService).GetAvailableSlots),
		unaryMethod("CreateBooking", (*BookingGRPCService).CreateBooking),
		unaryMethod("CancelBooking", (*BookingGRPCService).CancelBooking),
		unaryMethod("ConfirmBooking", (*BookingGRPCService).ConfirmBooking),
		unaryMethod("CompleteBooking", (*BookingGRPCService).CompleteBooking),
		unaryMethod("ListAppointments", (*BookingGRPCService).ListAppointments),
		unaryMethod("UpcomingAppointments", (*BookingGRPCService).UpcomingAppointments),
		unaryMethod("Agenda", (*BookingGRPCService).Agenda),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clinicbook/v1/booking.proto",
}

func RegisterBookingService(s grpc.ServiceRegistrar, svc *BookingGRPCService) {
	s.RegisterService(&BookingServiceDesc, svc)
}

func (s *BookingGRPCService) ListProfessionals(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.catalog.ListProfessionals(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"professionals": list})
}

func (s *BookingGRPCService) ListServices(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.catalog.ListServices(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"services": list})
}

func (s *BookingGRPCService) GetAvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	professionalID, err := requiredID(req, "professional_id")
	if err != nil {
		return nil, err
	}
	serviceID, err := requiredID(req, "service_id")
	if err != nil {
		return nil, err
	}
	date := stringField(req, "date")
	if date == "" {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}

	slots, err := s.booking.GetAvailableSlots(ctx, professionalID, date, serviceID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"date": date, "slots": slots})
}

func (s *BookingGRPCService) CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	professionalID, err := requiredID(req, "professional_id")
	if err != nil {
		return nil, err
	}
	serviceID, err := requiredID(req, "service_id")
	if err != nil {
		return nil, err
	}

	appt, err := s.booking.CreateBooking(ctx, service.CreateBookingRequest{
		UserID:         userID,
		ProfessionalID: professionalID,
		ServiceID:      serviceID,
		Date:           stringField(req, "date"),
		Start:          stringField(req, "start"),
		Notes:          stringField(req, "notes"),
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(appt)
}

func (s *BookingGRPCService) CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	id, err := requiredID(req, "appointment_id")
	if err != nil {
		return nil, err
	}
	appt, err := s.booking.CancelBooking(ctx, userID, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(appt)
}

func (s *BookingGRPCService) ConfirmBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredID(req, "appointment_id")
	if err != nil {
		return nil, err
	}
	p, _ := PrincipalFrom(ctx)
	appt, err := s.booking.ConfirmBooking(ctx, p.UserID, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(appt)
}

func (s *BookingGRPCService) CompleteBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredID(req, "appointment_id")
	if err != nil {
		return nil, err
	}
	p, _ := PrincipalFrom(ctx)
	appt, err := s.booking.CompleteBooking(ctx, p.UserID, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(appt)
}

func (s *BookingGRPCService) ListAppointments(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.booking.ListUserAppointments(ctx, userID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"appointments": list})
}

func (s *BookingGRPCService) UpcomingAppointments(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.booking.UpcomingAppointments(ctx, userID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"appointments": list})
}

func (s *BookingGRPCService) Agenda(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	date := stringField(req, "date")
	if date == "" {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}
	list, err := s.booking.Agenda(ctx, date, int64(numberField(req, "professional_id")))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"date": date, "appointments": list})
}

func actingUser(ctx context.Context) (int64, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok || p.UserID == 0 {
		return 0, status.Error(codes.PermissionDenied, errUserTokenRequired.Error())
	}
	return p.UserID, nil
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

func numberField(req *structpb.Struct, name string) float64 {
	if req == nil {
		return 0
	}
	return req.GetFields()[name].GetNumberValue()
}

func requiredID(req *structpb.Struct, name string) (int64, error) {
	v := numberField(req, name)
	if v <= 0 || v != float64(int64(v)) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
	}
	return int64(v), nil
}

// toStruct converts v through its JSON form so the Struct matches the HTTP body.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func grpcError(err error) error {
	switch service.KindOf(err) {
	case service.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case service.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case service.KindConflict:
		if errors.Is(err, scheduling.ErrSlotConflict) {
			return status.Error(codes.AlreadyExists, err.Error())
		}
		return status.Error(codes.FailedPrecondition, err.Error())
	case service.KindForbidden:
		if errors.Is(err, scheduling.ErrCancellationWindowExpired) {
			return status.Error(codes.FailedPrecondition, err.Error())
		}
		return status.Error(codes.PermissionDenied, err.Error())
	case service.KindRateLimited:
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
