package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clinicbook/internal/config"
	"clinicbook/internal/metrics"
	"clinicbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking API as JSON over HTTP alongside the gRPC service.
type HTTPServer struct {
	cfg     *config.APIConfig
	booking BookingAPI
	catalog CatalogAPI
	server  *http.Server
	auth    *HTTPAuth
	logger  zerolog.Logger
}

func NewHTTPServer(
	cfg *config.APIConfig,
	booking BookingAPI,
	catalog CatalogAPI,
	tokens *Tokens,
	logger *zerolog.Logger,
) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, booking: booking, catalog: catalog}
	if logger != nil {
		srv.logger = logger.With().Str("component", "http").Logger()
	} else {
		srv.logger = zerolog.Nop()
	}
	srv.auth = NewHTTPAuth(cfg, tokens)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv.route(mux, "GET /api/v1/professionals", permReadCatalog, srv.handleListProfessionals)
	srv.route(mux, "GET /api/v1/professionals/{id}", permReadCatalog, srv.handleGetProfessional)
	srv.route(mux, "GET /api/v1/professionals/{id}/slots", permReadAvailability, srv.handleSlots)
	srv.route(mux, "GET /api/v1/services", permReadCatalog, srv.handleListServices)
	srv.route(mux, "GET /api/v1/services/{id}", permReadCatalog, srv.handleGetService)
	srv.route(mux, "POST /api/v1/appointments", permBook, srv.handleCreateAppointment)
	srv.route(mux, "GET /api/v1/appointments", permBook, srv.handleListAppointments)
	srv.route(mux, "GET /api/v1/appointments/upcoming", permBook, srv.handleUpcoming)
	srv.route(mux, "GET /api/v1/appointments/{id}", permBook, srv.handleGetAppointment)
	srv.route(mux, "POST /api/v1/appointments/{id}/cancel", permBook, srv.handleCancel)
	srv.route(mux, "POST /api/v1/appointments/{id}/confirm", permManageAppointments, srv.handleConfirm)
	srv.route(mux, "POST /api/v1/appointments/{id}/complete", permManageAppointments, srv.handleComplete)
	srv.route(mux, "GET /api/v1/agenda", permReadAgenda, srv.handleAgenda)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the root handler, including auth and logging.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// route registers h behind the permission check for perm.
func (s *HTTPServer) route(mux *http.ServeMux, pattern, perm string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			p = Principal{Client: anonymousClient}
		}
		if !p.Allows(perm) {
			writeError(w, http.StatusForbidden, errPermissionDenied.Error(), "forbidden")
			return
		}
		h(w, r)
	})
}

func (s *HTTPServer) handleListProfessionals(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.ListProfessionals(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"professionals": list})
}

func (s *HTTPServer) handleGetProfessional(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.catalog.GetProfessional(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	professionalID, ok := pathID(w, r)
	if !ok {
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required", "invalid_date")
		return
	}
	serviceID, err := strconv.ParseInt(r.URL.Query().Get("service_id"), 10, 64)
	if err != nil || serviceID <= 0 {
		writeError(w, http.StatusBadRequest, "service_id is required", "invalid_request")
		return
	}

	slots, err := s.booking.GetAvailableSlots(r.Context(), professionalID, date, serviceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"professional_id": professionalID,
		"service_id":      serviceID,
		"date":            date,
		"slots":           slots,
	})
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.ListServices(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": list})
}

func (s *HTTPServer) handleGetService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	svc, err := s.catalog.GetService(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

type createAppointmentRequest struct {
	ProfessionalID int64  `json:"professional_id"`
	ServiceID      int64  `json:"service_id"`
	Date           string `json:"date"`
	Start          string `json:"start"`
	Notes          string `json:"notes"`
}

func (s *HTTPServer) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var body createAppointmentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if body.ProfessionalID <= 0 || body.ServiceID <= 0 {
		writeError(w, http.StatusBadRequest, "professional_id and service_id are required", "invalid_request")
		return
	}

	appt, err := s.booking.CreateBooking(r.Context(), service.CreateBookingRequest{
		UserID:         userID,
		ProfessionalID: body.ProfessionalID,
		ServiceID:      body.ServiceID,
		Date:           strings.TrimSpace(body.Date),
		Start:          strings.TrimSpace(body.Start),
		Notes:          strings.TrimSpace(body.Notes),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (s *HTTPServer) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := s.booking.ListUserAppointments(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

func (s *HTTPServer) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := s.booking.UpcomingAppointments(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	appt, err := s.booking.GetAppointment(r.Context(), userID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	appt, err := s.booking.CancelBooking(r.Context(), userID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	appt, err := s.booking.ConfirmBooking(r.Context(), p.UserID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	appt, err := s.booking.CompleteBooking(r.Context(), p.UserID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleAgenda(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required", "invalid_date")
		return
	}
	var professionalID int64
	if raw := r.URL.Query().Get("professional_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid professional_id", "invalid_request")
			return
		}
		professionalID = id
	}

	list, err := s.booking.Agenda(r.Context(), date, professionalID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "appointments": list})
}

func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok || p.UserID == 0 {
		writeError(w, http.StatusForbidden, errUserTokenRequired.Error(), "forbidden")
		return 0, false
	}
	return p.UserID, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id", "invalid_request")
		return 0, false
	}
	return id, true
}

func httpStatus(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	if kind == service.KindInternal {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error", "internal")
		return
	}
	writeError(w, httpStatus(kind), err.Error(), service.Code(err))
}

// HTTPAuth resolves bearer tokens and API keys and applies per-client rate limits.
type HTTPAuth struct {
	cfg     *config.APIConfig
	auth    *authenticator
	limiter *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig, tokens *Tokens) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, auth: newAuthenticator(cfg, tokens), limiter: newRateLimiter(cfg)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || !a.cfg.Enabled || !a.cfg.HTTP.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := a.auth.authenticate(callerCredentials{
			bearer: bearerToken(r.Header.Get(authorizationHeader)),
			apiKey: strings.TrimSpace(r.Header.Get(a.auth.apiKeyHeader)),
			extra:  strings.TrimSpace(r.Header.Get(a.auth.apiExtraHeader)),
			userID: strings.TrimSpace(r.Header.Get(userIDHeader)),
		})
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error(), "unauthorized")
			return
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error(), "rate_limited")
			return
		}

		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if !a.limiter.allow(a.clientKey(r)) {
		return errRateLimited
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.auth.apiKeyHeader)); apiKey != "" {
		return apiKey
	}
	if token := bearerToken(r.Header.Get(authorizationHeader)); token != "" {
		return token
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDMetadataKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	writeJSON(w, statusCode, map[string]string{"error": message, "code": code})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
