package api

import (
	"context"
	"testing"
	"time"

	"clinicbook/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			JWT:          config.JWTConfig{Secret: "test-secret", Issuer: "clinicbook", TokenTTL: "1h"},
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "desk-key", Extra: "desk-extra", Name: "front-desk", Permissions: []string{
					permReadCatalog, permReadAvailability, permManageAppointments, permReadAgenda,
				}},
				{Key: "site-key", Extra: "site-extra", Name: "website", Permissions: []string{permReadCatalog}},
			},
		},
		RateLimit: config.APIRateLimitConfig{
			RPS:   100,
			Burst: 200,
		},
	}
}

func TestAuthInterceptor(t *testing.T) {
	cfg := testAPIConfig()
	tokens := NewTokens(cfg.Auth.JWT)
	auth := NewAuthInterceptor(&cfg, tokens)
	interceptor := auth.Unary()

	var seen Principal
	handler := func(ctx context.Context, req any) (any, error) {
		seen, _ = PrincipalFrom(ctx)
		return "ok", nil
	}

	method := func(name string) *grpc.UnaryServerInfo {
		return &grpc.UnaryServerInfo{FullMethod: "/" + bookingServiceName + "/" + name}
	}

	t.Run("APIKeySuccess", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "site-key", "x-api-extra", "site-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		resp, err := interceptor(ctx, "req", method("ListServices"), handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
		assert.Equal(t, "website", seen.Client)
	})

	t.Run("BearerSuccess", func(t *testing.T) {
		token, err := tokens.Issue(5, "", time.Now())
		require.NoError(t, err)
		md := metadata.Pairs("authorization", "Bearer "+token)
		ctx := metadata.NewIncomingContext(context.Background(), md)

		_, err = interceptor(ctx, "req", method("CreateBooking"), handler)
		assert.NoError(t, err)
		assert.Equal(t, int64(5), seen.UserID)
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), "req", method("ListServices"), handler)
		assert.Error(t, err)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("MissingHeaders", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs())
		_, err := interceptor(ctx, "req", method("ListServices"), handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "invalid", "x-api-extra", "site-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", method("ListServices"), handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "site-key", "x-api-extra", "invalid")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", method("ListServices"), handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidToken", func(t *testing.T) {
		md := metadata.Pairs("authorization", "Bearer nope")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", method("ListServices"), handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "site-key", "x-api-extra", "site-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", method("GetAvailableSlots"), handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("PatientCannotConfirm", func(t *testing.T) {
		token, err := tokens.Issue(5, "", time.Now())
		require.NoError(t, err)
		md := metadata.Pairs("authorization", "Bearer "+token)
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err = interceptor(ctx, "req", method("ConfirmBooking"), handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("RateLimited", func(t *testing.T) {
		limited := testAPIConfig()
		limited.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
		li := NewAuthInterceptor(&limited, tokens).Unary()
		md := metadata.Pairs("x-api-key", "site-key", "x-api-extra", "site-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)

		_, err := li(ctx, "req", method("ListServices"), handler)
		require.NoError(t, err)
		_, err = li(ctx, "req", method("ListServices"), handler)
		assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	})

	t.Run("AuthDisabledUsesUserHeader", func(t *testing.T) {
		open := testAPIConfig()
		open.Auth.Enabled = false
		oi := NewAuthInterceptor(&open, nil).Unary()
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-user-id", "9"))

		_, err := oi(ctx, "req", method("CreateBooking"), handler)
		require.NoError(t, err)
		assert.Equal(t, int64(9), seen.UserID)
	})
}

func TestPrincipalAllows(t *testing.T) {
	patient := Principal{UserID: 1}
	assert.True(t, patient.Allows(permBook))
	assert.False(t, patient.Allows(permManageAppointments))

	unrestricted := Principal{Client: "ops"}
	assert.True(t, unrestricted.Allows(permReadAgenda))

	site := Principal{Client: "website", Permissions: []string{permReadCatalog}}
	assert.True(t, site.Allows(permReadCatalog))
	assert.False(t, site.Allows(permReadAvailability))
	assert.True(t, site.Allows(""))
}

func TestChainUnaryInterceptors(t *testing.T) {
	var order []string
	mk := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, h grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return h(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(mk("a"), mk("b"))
	_, err := chain(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		order = append(order, "handler")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	rec := RecoveryUnaryInterceptor(nil)
	_, err := rec(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"}, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))

	resp, err := rec(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestRateLimiter(t *testing.T) {
	cfg := config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2}}
	l := newRateLimiter(&cfg)
	now := time.Date(2030, time.January, 14, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, l.allow("a"))

	// idle buckets are dropped on the next sweep
	now = now.Add(limiterIdleTTL + time.Minute)
	assert.True(t, l.allow("c"))
	assert.Equal(t, 1, l.size())

	unlimited := newRateLimiter(&config.APIConfig{})
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.allow("x"))
	}
}
