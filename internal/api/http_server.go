package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stoyanka/internal/config"
	"stoyanka/internal/database"
	"stoyanka/internal/export"
	"stoyanka/internal/ledger"
	"stoyanka/internal/lifecycle"
	"stoyanka/internal/metrics"
	"stoyanka/internal/models"
	"stoyanka/internal/otp"
	"stoyanka/internal/refund"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the reservation lifecycle over JSON endpoints plus
// a websocket push channel.
type HTTPServer struct {
	cfg      config.APIConfig
	coord    *lifecycle.Coordinator
	ledger   *ledger.Ledger
	exporter *export.Exporter
	hub      *Hub
	server   *http.Server
	auth     *HTTPAuth
	log      zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, coord *lifecycle.Coordinator, led *ledger.Ledger, exporter *export.Exporter, hub *Hub, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, coord: coord, ledger: led, exporter: exporter, hub: hub}
	srv.auth = NewHTTPAuth(cfg)
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux.HandleFunc("/api/v1/reservations", srv.handleReservations)
	mux.HandleFunc("/api/v1/reservations/", srv.handleReservation)
	mux.HandleFunc("/api/v1/spaces", srv.handleSpaces)
	mux.HandleFunc("/api/v1/spaces/", srv.handleSpace)
	mux.HandleFunc("/api/v1/export/reservations", srv.handleExport)
	mux.HandleFunc("/healthz", srv.handleHealth)
	if hub != nil {
		mux.Handle("/ws", hub)
	}

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
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

// reservationPayload добавляет к снимку брони производный статус:
// active-сессия после конца окна отображается как overdue.
type reservationPayload struct {
	*models.Reservation
	EffectiveStatus string `json:"effective_status"`
}

func newReservationPayload(r *models.Reservation) reservationPayload {
	return reservationPayload{Reservation: r, EffectiveStatus: r.EffectiveStatus(time.Now())}
}

func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations")
	switch r.Method {
	case http.MethodPost:
		s.handleCreateReservation(w, r)
	case http.MethodGet:
		s.handleListReservations(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	type request struct {
		SpaceID    string    `json:"space_id"`
		BuyerID    string    `json:"buyer_id"`
		VehicleRef string    `json:"vehicle_ref"`
		StartTime  time.Time `json:"start_time"`
		EndTime    time.Time `json:"end_time"`
		Comment    string    `json:"comment"`
	}

	var body request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.SpaceID == "" || body.BuyerID == "" {
		writeError(w, http.StatusBadRequest, "space_id and buyer_id are required")
		return
	}

	res, err := s.coord.CreateReservation(r.Context(), lifecycle.CreateRequest{
		SpaceID:    body.SpaceID,
		BuyerID:    body.BuyerID,
		VehicleRef: body.VehicleRef,
		StartTime:  body.StartTime,
		EndTime:    body.EndTime,
		Comment:    body.Comment,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReservationPayload(res))
}

func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	buyerID := strings.TrimSpace(r.URL.Query().Get("buyer_id"))
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))

	var (
		list []*models.Reservation
		err  error
	)
	switch {
	case buyerID != "":
		list, err = s.coord.GetReservationsByBuyer(r.Context(), buyerID)
	case providerID != "":
		list, err = s.coord.GetReservationsByProvider(r.Context(), providerID)
	default:
		writeError(w, http.StatusBadRequest, "buyer_id or provider_id is required")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	payload := make([]reservationPayload, 0, len(list))
	for _, res := range list {
		payload = append(payload, newReservationPayload(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": payload})
}

func (s *HTTPServer) handleReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservation")
	const prefix = "/api/v1/reservations/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetReservation(w, r, id)
	case len(parts) == 2 && parts[1] == "transition" && r.Method == http.MethodPost:
		s.handleTransition(w, r, id)
	case len(parts) == 2 && parts[1] == "payment" && r.Method == http.MethodPost:
		s.handlePayment(w, r, id)
	case len(parts) == 3 && parts[1] == "otp" && parts[2] == "verify" && r.Method == http.MethodPost:
		s.handleOtpVerify(w, r, id)
	case len(parts) == 3 && parts[1] == "otp" && parts[2] == "reissue" && r.Method == http.MethodPost:
		s.handleOtpReissue(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request, id string) {
	res, err := s.coord.GetReservation(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationPayload(res))
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request, id string) {
	type request struct {
		Action     string `json:"action"`
		ProviderID string `json:"provider_id"`
		Reason     string `json:"reason"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var (
		res *models.Reservation
		err error
	)
	switch body.Action {
	case "accept":
		res, err = s.coord.Accept(r.Context(), id, body.ProviderID)
	case "reject":
		res, err = s.coord.Reject(r.Context(), id, body.ProviderID, body.Reason)
	case "cancel":
		res, err = s.coord.Cancel(r.Context(), id, body.Reason)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", body.Action))
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationPayload(res))
}

func (s *HTTPServer) handlePayment(w http.ResponseWriter, r *http.Request, id string) {
	type request struct {
		Paid bool `json:"paid"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !body.Paid {
		writeError(w, http.StatusBadRequest, "only paid=true is supported")
		return
	}

	res, err := s.coord.MarkPaid(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationPayload(res))
}

func (s *HTTPServer) handleOtpVerify(w http.ResponseWriter, r *http.Request, id string) {
	type request struct {
		Phase string `json:"phase"`
		Code  string `json:"code"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.coord.VerifyOtp(r.Context(), id, body.Phase, body.Code)
	if err != nil {
		var invalid *otp.InvalidCodeError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":              "invalid code",
				"attempts_remaining": invalid.Remaining,
			})
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationPayload(res))
}

func (s *HTTPServer) handleOtpReissue(w http.ResponseWriter, r *http.Request, id string) {
	type request struct {
		Phase string `json:"phase"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ch, err := s.coord.ReissueOtp(r.Context(), id, body.Phase)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	// Код наружу не отдаем: он доставляется актору отдельным каналом
	writeJSON(w, http.StatusOK, map[string]any{
		"phase":              ch.Phase,
		"expires_at":         ch.ExpiresAt,
		"attempts_remaining": ch.AttemptsRemaining,
	})
}

func (s *HTTPServer) handleSpaces(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("spaces")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Список отдается из того же репозитория, что и леджер
	spaces, err := s.ledger.GetSpaces(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": spaces})
}

func (s *HTTPServer) handleSpace(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("space")
	const prefix = "/api/v1/spaces/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		space, err := s.ledger.GetSpace(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, space)
	case len(parts) == 2 && parts[1] == "online" && r.Method == http.MethodPost:
		type request struct {
			Online bool `json:"online"`
		}
		var body request
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		space, err := s.ledger.SetOnline(r.Context(), id, body.Online)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"is_online": space.IsOnline, "version": space.Version})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "export is not configured")
		return
	}

	from, err := time.Parse("2006-01-02", strings.TrimSpace(r.URL.Query().Get("from")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", strings.TrimSpace(r.URL.Query().Get("to")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
		return
	}

	path, err := s.exporter.Reservations(r.Context(), from, to.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": path})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError переводит типизированные ошибки ядра в HTTP-статусы.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrOutOfStock):
		writeError(w, http.StatusConflict, "no available spots")
	case errors.Is(err, database.ErrStaleWrite):
		writeError(w, http.StatusConflict, "version conflict")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lifecycle.ErrPaymentRequired):
		writeError(w, http.StatusUnprocessableEntity, "payment required")
	case errors.Is(err, refund.ErrCancellationWindowClosed):
		writeError(w, http.StatusUnprocessableEntity, "cancellation window closed")
	case errors.Is(err, otp.ErrOtpExpired):
		writeError(w, http.StatusUnprocessableEntity, "otp expired")
	case errors.Is(err, otp.ErrOtpAttemptsExhausted):
		writeError(w, http.StatusUnprocessableEntity, "otp attempts exhausted")
	case errors.Is(err, otp.ErrNoChallenge), errors.Is(err, otp.ErrInvalidOtp):
		writeError(w, http.StatusUnprocessableEntity, "invalid otp")
	default:
		s.log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.log.Info().
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
