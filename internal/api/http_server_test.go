package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clinicbook/internal/config"
	"clinicbook/internal/database"
	"clinicbook/internal/events"
	"clinicbook/internal/models"
	"clinicbook/internal/repository"
	"clinicbook/internal/scheduling"
	"clinicbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2030, time.January, 14, 10, 0, 0, 0, time.UTC)

const bookingDate = "2030-01-20"

type testStack struct {
	db      *database.DB
	booking *service.BookingService
	catalog *service.CatalogService
	tokens  *Tokens
	server  *httptest.Server
}

func newTestStack(t *testing.T, cfg config.APIConfig) *testStack {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetLocation(time.UTC)

	err = db.SyncCatalog(context.Background(),
		[]models.Professional{{
			ID: 1, Name: "Dr. Ana Ruiz", Specialty: "Dermatology",
			WorkStart: scheduling.MustParseTimeOfDay("08:00"),
			WorkEnd:   scheduling.MustParseTimeOfDay("12:00"),
			Rating:    4.8, IsActive: true,
		}},
		[]models.Service{{ID: 1, Name: "Consultation", DurationMinutes: 30, IsActive: true}},
	)
	require.NoError(t, err)

	booking := service.NewBookingService(db, repository.NewMemorySlotCache(time.Minute), events.NewEventBus(),
		service.BookingOptions{
			GranularityMinutes: 30,
			CancellationWindow: 24 * time.Hour,
			RateLimitAttempts:  50,
			Location:           time.UTC,
			Now:                func() time.Time { return testNow },
		}, &logger)
	catalog := service.NewCatalogService(db, &logger)
	tokens := NewTokens(cfg.Auth.JWT)

	srv := NewHTTPServer(&cfg, booking, catalog, tokens, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testStack{db: db, booking: booking, catalog: catalog, tokens: tokens, server: ts}
}

func (s *testStack) userToken(t *testing.T, userID int64) string {
	t.Helper()
	token, err := s.tokens.Issue(userID, "", time.Now())
	require.NoError(t, err)
	return token
}

type creds func(*http.Request)

func asUser(token string) creds {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func asClient(key, extra string) creds {
	return func(r *http.Request) {
		r.Header.Set("x-api-key", key)
		r.Header.Set("x-api-extra", extra)
	}
}

func anonymous(*http.Request) {}

func (s *testStack) do(t *testing.T, method, path string, c creds, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c(req)

	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func slotsPath(date string) string {
	return fmt.Sprintf("/api/v1/professionals/1/slots?date=%s&service_id=1", date)
}

func slotStarts(t *testing.T, body map[string]any) []string {
	t.Helper()
	raw, ok := body["slots"].([]any)
	require.True(t, ok, "slots missing from %v", body)
	starts := make([]string, 0, len(raw))
	for _, s := range raw {
		starts = append(starts, s.(map[string]any)["start"].(string))
	}
	return starts
}

func bookBody(start string) map[string]any {
	return map[string]any{"professional_id": 1, "service_id": 1, "date": bookingDate, "start": start}
}

func TestHTTPBookingFlow(t *testing.T) {
	stack := newTestStack(t, testAPIConfig())
	maria := asUser(stack.userToken(t, 5))
	pedro := asUser(stack.userToken(t, 6))

	code, body := stack.do(t, http.MethodGet, slotsPath(bookingDate), maria, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, slotStarts(t, body), 8)

	code, body = stack.do(t, http.MethodPost, "/api/v1/appointments", maria, bookBody("09:00"))
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "scheduled", body["status"])
	assert.Equal(t, "09:30", body["end"])
	id := int64(body["id"].(float64))

	code, body = stack.do(t, http.MethodPost, "/api/v1/appointments", pedro, bookBody("09:00"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "slot_conflict", body["code"])

	code, body = stack.do(t, http.MethodGet, slotsPath(bookingDate), pedro, nil)
	require.Equal(t, http.StatusOK, code)
	starts := slotStarts(t, body)
	assert.Len(t, starts, 7)
	assert.NotContains(t, starts, "09:00")

	path := fmt.Sprintf("/api/v1/appointments/%d", id)
	code, body = stack.do(t, http.MethodGet, path, pedro, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["code"])

	code, _ = stack.do(t, http.MethodPost, path+"/cancel", pedro, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = stack.do(t, http.MethodPost, path+"/cancel", maria, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "cancelled", body["status"])
	assert.NotEmpty(t, body["cancelled_at"])

	code, body = stack.do(t, http.MethodPost, path+"/cancel", maria, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_transition", body["code"])

	code, body = stack.do(t, http.MethodGet, slotsPath(bookingDate), pedro, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, slotStarts(t, body), "09:00")

	code, _ = stack.do(t, http.MethodPost, "/api/v1/appointments", pedro, bookBody("09:00"))
	assert.Equal(t, http.StatusCreated, code)

	code, body = stack.do(t, http.MethodGet, "/api/v1/appointments", maria, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["appointments"], 1)

	code, body = stack.do(t, http.MethodGet, "/api/v1/appointments/upcoming", pedro, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["appointments"], 1)
}

func TestHTTPBookingValidation(t *testing.T) {
	stack := newTestStack(t, testAPIConfig())
	user := asUser(stack.userToken(t, 5))

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"OutOfHours", bookBody("11:45"), http.StatusBadRequest, "out_of_hours"},
		{"BeforeOpening", bookBody("07:30"), http.StatusBadRequest, "out_of_hours"},
		{"BadTime", bookBody("9am"), http.StatusBadRequest, "invalid_time_format"},
		{"BadDate", map[string]any{"professional_id": 1, "service_id": 1, "date": "20-01-2030", "start": "09:00"}, http.StatusBadRequest, "invalid_date"},
		{"Past", map[string]any{"professional_id": 1, "service_id": 1, "date": "2030-01-14", "start": "09:00"}, http.StatusBadRequest, "date_in_past"},
		{"TooFar", map[string]any{"professional_id": 1, "service_id": 1, "date": "2031-01-14", "start": "09:00"}, http.StatusBadRequest, "date_too_far"},
		{"UnknownProfessional", map[string]any{"professional_id": 99, "service_id": 1, "date": bookingDate, "start": "09:00"}, http.StatusNotFound, "professional_not_found"},
		{"UnknownService", map[string]any{"professional_id": 1, "service_id": 99, "date": bookingDate, "start": "09:00"}, http.StatusNotFound, "service_not_found"},
		{"MissingIDs", map[string]any{"date": bookingDate, "start": "09:00"}, http.StatusBadRequest, "invalid_request"},
		{"UnknownField", map[string]any{"professional_id": 1, "service_id": 1, "date": bookingDate, "start": "09:00", "room": 3}, http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := stack.do(t, http.MethodPost, "/api/v1/appointments", user, tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.code, body["code"])
		})
	}

	t.Run("NothingPersisted", func(t *testing.T) {
		code, body := stack.do(t, http.MethodGet, "/api/v1/appointments", user, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Empty(t, body["appointments"])
	})

	t.Run("SlotsNeedServiceID", func(t *testing.T) {
		code, body := stack.do(t, http.MethodGet, "/api/v1/professionals/1/slots?date="+bookingDate, user, nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid_request", body["code"])
	})

	t.Run("SlotsInThePast", func(t *testing.T) {
		code, body := stack.do(t, http.MethodGet, slotsPath("2030-01-01"), user, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Empty(t, slotStarts(t, body))
	})

	t.Run("SlotsToday", func(t *testing.T) {
		code, body := stack.do(t, http.MethodGet, slotsPath("2030-01-14"), user, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, []string{"10:00", "10:30", "11:00", "11:30"}, slotStarts(t, body))
	})
}

func TestHTTPAuthentication(t *testing.T) {
	stack := newTestStack(t, testAPIConfig())

	t.Run("HealthzOpen", func(t *testing.T) {
		code, body := stack.do(t, http.MethodGet, "/healthz", anonymous, nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("NoCredentials", func(t *testing.T) {
		code, body := stack.do(t, http.MethodGet, "/api/v1/services", anonymous, nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "unauthorized", body["code"])
	})

	t.Run("BadToken", func(t *testing.T) {
		code, _ := stack.do(t, http.MethodGet, "/api/v1/services", asUser("garbage"), nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("BadExtra", func(t *testing.T) {
		code, _ := stack.do(t, http.MethodGet, "/api/v1/services", asClient("site-key", "wrong"), nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("ClientCatalogAccess", func(t *testing.T) {
		code, body := stack.do(t, http.MethodGet, "/api/v1/professionals", asClient("site-key", "site-extra"), nil)
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["professionals"], 1)
	})

	t.Run("ClientMissingPermission", func(t *testing.T) {
		code, body := stack.do(t, http.MethodGet, slotsPath(bookingDate), asClient("site-key", "site-extra"), nil)
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, "forbidden", body["code"])
	})

	t.Run("ClientCannotBook", func(t *testing.T) {
		code, _ := stack.do(t, http.MethodPost, "/api/v1/appointments", asClient("desk-key", "desk-extra"), bookBody("09:00"))
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("UnrestrictedClientNeedsUser", func(t *testing.T) {
		cfg := testAPIConfig()
		cfg.Auth.APIKeys = append(cfg.Auth.APIKeys, config.APIClientKey{Key: "ops", Extra: "ops-extra", Name: "ops"})
		ops := newTestStack(t, cfg)

		code, body := ops.do(t, http.MethodPost, "/api/v1/appointments", asClient("ops", "ops-extra"), bookBody("09:00"))
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, errUserTokenRequired.Error(), body["error"])
	})

	t.Run("PatientCannotManage", func(t *testing.T) {
		code, _ := stack.do(t, http.MethodGet, "/api/v1/agenda?date="+bookingDate, asUser(stack.userToken(t, 5)), nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("AuthDisabledUserHeader", func(t *testing.T) {
		cfg := testAPIConfig()
		cfg.Auth.Enabled = false
		open := newTestStack(t, cfg)

		code, body := open.do(t, http.MethodPost, "/api/v1/appointments", func(r *http.Request) {
			r.Header.Set("X-User-ID", "42")
		}, bookBody("10:00"))
		require.Equal(t, http.StatusCreated, code, body)
		assert.Equal(t, float64(42), body["user_id"])
	})
}

func TestHTTPStaffOperations(t *testing.T) {
	stack := newTestStack(t, testAPIConfig())
	patient := asUser(stack.userToken(t, 5))
	desk := asClient("desk-key", "desk-extra")

	code, body := stack.do(t, http.MethodPost, "/api/v1/appointments", patient, bookBody("08:30"))
	require.Equal(t, http.StatusCreated, code, body)
	path := fmt.Sprintf("/api/v1/appointments/%d", int64(body["id"].(float64)))

	code, _ = stack.do(t, http.MethodPost, path+"/confirm", patient, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = stack.do(t, http.MethodPost, path+"/confirm", desk, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "confirmed", body["status"])

	// The appointment has not started yet.
	code, body = stack.do(t, http.MethodPost, path+"/complete", desk, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_transition", body["code"])

	code, body = stack.do(t, http.MethodGet, "/api/v1/agenda?date="+bookingDate+"&professional_id=1", desk, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["appointments"], 1)

	code, body = stack.do(t, http.MethodGet, "/api/v1/agenda?date=2030-01-21", desk, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["appointments"])

	code, _ = stack.do(t, http.MethodGet, "/api/v1/agenda", desk, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = stack.do(t, http.MethodPost, "/api/v1/appointments/999/confirm", desk, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHTTPRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	stack := newTestStack(t, cfg)
	site := asClient("site-key", "site-extra")

	for i := 0; i < 2; i++ {
		code, _ := stack.do(t, http.MethodGet, "/api/v1/services", site, nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, body := stack.do(t, http.MethodGet, "/api/v1/services", site, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", body["code"])

	// Limits are per client.
	code, _ = stack.do(t, http.MethodGet, "/api/v1/services", asClient("desk-key", "desk-extra"), nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHTTPConcurrentBookingsSameSlot(t *testing.T) {
	stack := newTestStack(t, testAPIConfig())

	const callers = 8
	tokens := make([]string, callers)
	for i := range tokens {
		tokens[i] = stack.userToken(t, int64(100+i))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			data, _ := json.Marshal(bookBody("10:00"))
			req, _ := http.NewRequest(http.MethodPost, stack.server.URL+"/api/v1/appointments", bytes.NewReader(data))
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := stack.server.Client().Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			mu.Lock()
			statuses[resp.StatusCode]++
			mu.Unlock()
		}(tokens[i])
	}
	wg.Wait()

	assert.Equal(t, 1, statuses[http.StatusCreated])
	assert.Equal(t, callers-1, statuses[http.StatusConflict])

	booked, err := stack.db.ListBookedIntervals(context.Background(), 1, time.Date(2030, 1, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}
