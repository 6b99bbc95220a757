package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"

	"clinicbook/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	authorizationHeader   = "authorization"
	userIDHeader          = "x-user-id"
	clientKeyUnknown      = "unknown"
	anonymousClient       = "anonymous"
)

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
	errUserTokenRequired  = errors.New("a user token is required")
	errRateLimited        = errors.New("rate limit exceeded")
)

// callerCredentials is what a request presented, regardless of transport.
type callerCredentials struct {
	bearer string
	apiKey string
	extra  string
	userID string
}

// authenticator resolves credentials into a Principal. Bearer tokens win over
// API keys when both are sent.
type authenticator struct {
	cfg            *config.APIConfig
	tokens         *Tokens
	clientsByKey   map[string]config.APIClientKey
	apiKeyHeader   string
	apiExtraHeader string
}

func newAuthenticator(cfg *config.APIConfig, tokens *Tokens) *authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	apiKeyHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	return &authenticator{
		cfg:            cfg,
		tokens:         tokens,
		clientsByKey:   m,
		apiKeyHeader:   apiKeyHeader,
		apiExtraHeader: extraHeader,
	}
}

func (a *authenticator) authenticate(c callerCredentials) (Principal, error) {
	if !a.cfg.Auth.Enabled {
		// Without auth the caller may name the acting user.
		if id, err := strconv.ParseInt(c.userID, 10, 64); err == nil && id > 0 {
			return Principal{UserID: id}, nil
		}
		return Principal{Client: anonymousClient}, nil
	}

	if c.bearer != "" {
		if a.tokens == nil {
			return Principal{}, errInvalidToken
		}
		id, err := a.tokens.Verify(c.bearer)
		if err != nil {
			return Principal{}, err
		}
		return Principal{UserID: id}, nil
	}

	if c.apiKey == "" || c.extra == "" {
		return Principal{}, errMissingCredentials
	}
	client, ok := a.clientsByKey[c.apiKey]
	if !ok {
		return Principal{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(c.extra)) != 1 {
		return Principal{}, errInvalidExtra
	}

	name := client.Name
	if name == "" {
		name = "api-key"
	}
	return Principal{Client: name, Permissions: client.Permissions}, nil
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type AuthInterceptor struct {
	cfg     *config.APIConfig
	auth    *authenticator
	limiter *rateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig, tokens *Tokens) *AuthInterceptor {
	return &AuthInterceptor{
		cfg:     cfg,
		auth:    newAuthenticator(cfg, tokens),
		limiter: newRateLimiter(cfg),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !a.cfg.Enabled {
			return handler(withPrincipal(ctx, Principal{Client: anonymousClient}), req)
		}

		principal, err := a.checkAuth(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		if err := a.checkRateLimit(ctx); err != nil {
			return nil, err
		}

		return handler(withPrincipal(ctx, principal), req)
	}
}

func (a *AuthInterceptor) checkAuth(ctx context.Context, fullMethod string) (Principal, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok && a.cfg.Auth.Enabled {
		return Principal{}, status.Error(codes.Unauthenticated, "missing metadata")
	}

	principal, err := a.auth.authenticate(callerCredentials{
		bearer: bearerToken(first(md.Get(authorizationHeader))),
		apiKey: first(md.Get(a.auth.apiKeyHeader)),
		extra:  first(md.Get(a.auth.apiExtraHeader)),
		userID: first(md.Get(userIDHeader)),
	})
	if err != nil {
		return Principal{}, status.Error(codes.Unauthenticated, err.Error())
	}

	if !principal.Allows(requiredPermission(fullMethod)) {
		return Principal{}, status.Error(codes.PermissionDenied, errPermissionDenied.Error())
	}
	return principal, nil
}

func requiredPermission(fullMethod string) string {
	switch strings.TrimPrefix(fullMethod, "/"+bookingServiceName+"/") {
	case "ListProfessionals", "ListServices":
		return permReadCatalog
	case "GetAvailableSlots":
		return permReadAvailability
	case "CreateBooking", "CancelBooking", "ListAppointments", "UpcomingAppointments":
		return permBook
	case "ConfirmBooking", "CompleteBooking":
		return permManageAppointments
	case "Agenda":
		return permReadAgenda
	default:
		return ""
	}
}

func (a *AuthInterceptor) checkRateLimit(ctx context.Context) error {
	if !a.limiter.allow(a.clientKey(ctx)) {
		return status.Error(codes.ResourceExhausted, errRateLimited.Error())
	}
	return nil
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if apiKey := first(md.Get(a.auth.apiKeyHeader)); apiKey != "" {
		return apiKey
	}
	if token := bearerToken(first(md.Get(authorizationHeader))); token != "" {
		return token
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
