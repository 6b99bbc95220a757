package api

import (
	"context"
	"net"
	"testing"

	"clinicbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type grpcClient struct {
	conn *grpc.ClientConn
}

func dialBooking(t *testing.T, stack *testStack, cfg config.APIConfig) *grpcClient {
	t.Helper()
	logger := zerolog.Nop()

	srv, err := newGRPCServer(&cfg, stack.booking, stack.catalog, stack.tokens, &logger)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &grpcClient{conn: conn}
}

func (c *grpcClient) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	err = c.conn.Invoke(ctx, "/"+bookingServiceName+"/"+method, in, out)
	return out, err
}

func withBearer(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func withAPIKey(key, extra string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "x-api-key", key, "x-api-extra", extra)
}

func TestGRPCBookingService(t *testing.T) {
	cfg := testAPIConfig()
	stack := newTestStack(t, cfg)
	client := dialBooking(t, stack, cfg)

	maria := withBearer(stack.userToken(t, 5))
	pedro := withBearer(stack.userToken(t, 6))
	desk := withAPIKey("desk-key", "desk-extra")

	t.Run("Catalog", func(t *testing.T) {
		out, err := client.call(withAPIKey("site-key", "site-extra"), "ListServices", nil)
		require.NoError(t, err)
		services := out.GetFields()["services"].GetListValue().GetValues()
		require.Len(t, services, 1)
		assert.Equal(t, "Consultation", services[0].GetStructValue().GetFields()["name"].GetStringValue())
	})

	slotsReq := map[string]any{"professional_id": 1, "service_id": 1, "date": bookingDate}

	t.Run("Slots", func(t *testing.T) {
		out, err := client.call(maria, "GetAvailableSlots", slotsReq)
		require.NoError(t, err)
		assert.Len(t, out.GetFields()["slots"].GetListValue().GetValues(), 8)
	})

	var appointmentID float64
	t.Run("Book", func(t *testing.T) {
		out, err := client.call(maria, "CreateBooking", bookBody("11:00"))
		require.NoError(t, err)
		fields := out.GetFields()
		assert.Equal(t, "scheduled", fields["status"].GetStringValue())
		appointmentID = fields["id"].GetNumberValue()
		assert.Positive(t, appointmentID)
	})

	t.Run("DoubleBook", func(t *testing.T) {
		_, err := client.call(pedro, "CreateBooking", bookBody("11:00"))
		assert.Equal(t, codes.AlreadyExists, status.Code(err))

		_, err = client.call(pedro, "CreateBooking", bookBody("10:45"))
		assert.Equal(t, codes.AlreadyExists, status.Code(err))
	})

	t.Run("OutOfHours", func(t *testing.T) {
		_, err := client.call(pedro, "CreateBooking", bookBody("11:45"))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("MissingID", func(t *testing.T) {
		_, err := client.call(pedro, "CreateBooking", map[string]any{"date": bookingDate, "start": "09:00"})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("ClientCannotBook", func(t *testing.T) {
		_, err := client.call(desk, "CreateBooking", bookBody("09:00"))
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("SlotsAfterBooking", func(t *testing.T) {
		out, err := client.call(pedro, "GetAvailableSlots", slotsReq)
		require.NoError(t, err)
		assert.Len(t, out.GetFields()["slots"].GetListValue().GetValues(), 7)
	})

	t.Run("CancelNotOwner", func(t *testing.T) {
		_, err := client.call(pedro, "CancelBooking", map[string]any{"appointment_id": appointmentID})
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("ConfirmByStaff", func(t *testing.T) {
		out, err := client.call(desk, "ConfirmBooking", map[string]any{"appointment_id": appointmentID})
		require.NoError(t, err)
		assert.Equal(t, "confirmed", out.GetFields()["status"].GetStringValue())
	})

	t.Run("Agenda", func(t *testing.T) {
		out, err := client.call(desk, "Agenda", map[string]any{"date": bookingDate})
		require.NoError(t, err)
		assert.Len(t, out.GetFields()["appointments"].GetListValue().GetValues(), 1)
	})

	t.Run("Cancel", func(t *testing.T) {
		out, err := client.call(maria, "CancelBooking", map[string]any{"appointment_id": appointmentID})
		require.NoError(t, err)
		assert.Equal(t, "cancelled", out.GetFields()["status"].GetStringValue())

		_, err = client.call(maria, "CancelBooking", map[string]any{"appointment_id": appointmentID})
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := client.call(maria, "CancelBooking", map[string]any{"appointment_id": 999})
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		_, err := client.call(context.Background(), "ListServices", nil)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})
}

func TestGRPCCancellationWindow(t *testing.T) {
	cfg := testAPIConfig()
	stack := newTestStack(t, cfg)
	client := dialBooking(t, stack, cfg)
	user := withBearer(stack.userToken(t, 5))

	// Tomorrow 09:00 is 23 hours away, inside the 24h window.
	out, err := client.call(user, "CreateBooking", map[string]any{
		"professional_id": 1, "service_id": 1, "date": "2030-01-15", "start": "09:00",
	})
	require.NoError(t, err)

	_, err = client.call(user, "CancelBooking", map[string]any{"appointment_id": out.GetFields()["id"].GetNumberValue()})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}
