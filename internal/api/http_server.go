package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking platform's JSON API.
type HTTPServer struct {
	cfg      config.APIConfig
	repo     domain.Repository
	trust    domain.TrustService
	promos   domain.PromotionService
	bookings domain.BookingService
	logger   *zerolog.Logger
	server   *http.Server
	auth     *HTTPAuth
}

func NewHTTPServer(
	cfg config.APIConfig,
	repo domain.Repository,
	cache domain.CacheRepository,
	trust domain.TrustService,
	promos domain.PromotionService,
	bookings domain.BookingService,
	logger *zerolog.Logger,
) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:      cfg,
		repo:     repo,
		trust:    trust,
		promos:   promos,
		bookings: bookings,
		logger:   logger,
	}
	srv.auth = NewHTTPAuth(cfg, cache)

	mux.HandleFunc("/api/v1/users/", srv.handleUserEligibility)
	mux.HandleFunc("/api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("/api/v1/bookings/", srv.handleNoShow)
	mux.HandleFunc("/api/v1/quotes", srv.handleQuote)
	mux.HandleFunc("/api/v1/availability/", srv.handleAvailability)
	mux.HandleFunc("/api/v1/facilities", srv.handleFacilities)
	mux.HandleFunc("/api/v1/cron/run", srv.handleCronRun)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// Handler returns the fully wrapped handler, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// GET /api/v1/users/{id}/eligibility
func (s *HTTPServer) handleUserEligibility(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("eligibility")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/users/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "eligibility" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	result, err := s.trust.CanUserBook(r.Context(), userID, time.Now())
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("eligibility check failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type createBookingRequest struct {
	UserID     int64   `json:"user_id"`
	UserName   string  `json:"user_name"`
	FacilityID int64   `json:"facility_id"`
	CourtName  string  `json:"court_name"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	Price      float64 `json:"price"`
	Comment    string  `json:"comment"`
}

// POST /api/v1/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.UserID <= 0 || req.FacilityID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id and facility_id are required")
		return
	}
	if req.Price < 0 {
		writeError(w, http.StatusBadRequest, "price must not be negative")
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time; expected RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time; expected RFC3339")
		return
	}

	booking := &models.Booking{
		UserID:     req.UserID,
		UserName:   req.UserName,
		FacilityID: req.FacilityID,
		CourtName:  req.CourtName,
		StartTime:  start,
		EndTime:    end,
		Price:      req.Price,
		Comment:    req.Comment,
	}

	if err := s.bookings.CreateBooking(r.Context(), booking); err != nil {
		var notEligible *service.ErrNotEligible
		switch {
		case errors.As(err, &notEligible):
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":       "user is not eligible to book",
				"eligibility": notEligible.Result,
			})
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, service.ErrFacilityNotFound):
			writeError(w, http.StatusNotFound, "facility not found")
		case errors.Is(err, database.ErrNotAvailable):
			writeError(w, http.StatusConflict, "no court available for the requested slot")
		default:
			s.logger.Error().Err(err).Msg("create booking failed")
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

type noShowRequest struct {
	ReporterID int64  `json:"reporter_id"`
	Reason     string `json:"reason"`
}

// POST /api/v1/bookings/{id}/no-show
func (s *HTTPServer) handleNoShow(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("no_show")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "no-show" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	bookingID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || bookingID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	var req noShowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ReporterID <= 0 {
		writeError(w, http.StatusBadRequest, "reporter_id is required")
		return
	}

	result, err := s.trust.ReportNoShow(r.Context(), bookingID, req.ReporterID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBookingNotFound):
			writeError(w, http.StatusNotFound, "booking not found")
		case errors.Is(err, database.ErrAlreadyReported):
			writeError(w, http.StatusConflict, "booking already has a no-show report")
		case errors.Is(err, service.ErrBookingNotEnded):
			writeError(w, http.StatusConflict, "booking slot has not ended yet")
		case errors.Is(err, service.ErrInvalidBookingState):
			writeError(w, http.StatusConflict, "booking status does not allow a no-show report")
		default:
			s.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("no-show report failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type quoteRequest struct {
	FacilityID int64   `json:"facility_id"`
	BasePrice  float64 `json:"base_price"`
	At         string  `json:"at,omitempty"`
}

// POST /api/v1/quotes
func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("quotes")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	at := time.Now()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at; expected RFC3339")
			return
		}
		at = parsed
	}

	quote, err := s.promos.Quote(r.Context(), req.FacilityID, req.BasePrice, at)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNegativeBasePrice):
			writeError(w, http.StatusBadRequest, "base_price must not be negative")
		case errors.Is(err, service.ErrFacilityNotFound):
			writeError(w, http.StatusNotFound, "facility not found")
		default:
			s.logger.Error().Err(err).Msg("quote failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// GET /api/v1/availability/{facility}?date=YYYY-MM-DD
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/availability/"
	facilityName := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, prefix))
	if facilityName == "" || strings.Contains(facilityName, "/") {
		writeError(w, http.StatusBadRequest, "facility name is required")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	info, err := s.repo.GetFacilityAvailabilityByName(r.Context(), facilityName, date)
	if err != nil {
		writeError(w, http.StatusNotFound, "facility not found")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// GET /api/v1/facilities
func (s *HTTPServer) handleFacilities(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("facilities")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"facilities": s.repo.GetFacilities()})
}

// POST /api/v1/cron/run triggers the completion/expiry batch. Guarded
// by the shared cron secret, not the API-key scheme, so schedulers can
// call it without a client key.
func (s *HTTPServer) handleCronRun(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cron_run")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !s.checkCronSecret(r) {
		writeError(w, http.StatusUnauthorized, "invalid cron secret")
		return
	}

	result, err := s.trust.ProcessEndedBookings(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("cron batch failed")
		writeError(w, http.StatusInternalServerError, "batch run failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) checkCronSecret(r *http.Request) bool {
	if s.cfg.Cron.Secret == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Cron.Secret)) == 1
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("x-request-id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("x-request-id", requestID)

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

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
