package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/infra/i18n"
	"coupon-payments/internal/infra/logging"
	"coupon-payments/internal/infra/session"
	"coupon-payments/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

type Options struct {
	PublicOrigin    string
	PlansPath       string // where the result page sends the user to pick another provider
	DefaultLanguage string
	RequestTimeout  time.Duration

	// Limiter caps initiations per user per minute; nil or a zero limit disables it.
	Limiter           Limiter
	InitiatePerMinute int
}

// Server exposes the payment orchestrator over HTTP.
type Server struct {
	payments    usecase.PaymentUseCase
	sessions    *session.Manager
	auth        *Authenticator
	translators map[string]*i18n.Translator
	opts        Options
	log         *zerolog.Logger
}

func NewServer(
	payments usecase.PaymentUseCase,
	sessions *session.Manager,
	auth *Authenticator,
	translators map[string]*i18n.Translator,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.PlansPath == "" {
		opts.PlansPath = "/plans"
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "ja"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		payments:    payments,
		sessions:    sessions,
		auth:        auth,
		translators: translators,
		opts:        opts,
		log:         &l,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/card", s.handleCardWebhook)
		r.Get("/payments/return/{outcome}", s.handleReturn)
		r.Post("/payments/return/{outcome}", s.handleReturn)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireUser(s.log))
			r.With(RateLimit(s.opts.Limiter, "initiate", s.opts.InitiatePerMinute, time.Minute, s.log)).
				Post("/payments", s.handleInitiate)
			r.Get("/payments/{intentId}/status", s.handleStatus)
		})
	})
	return r
}

type initiateRequest struct {
	IntentID     string             `json:"intentId,omitempty"`
	PlanID       string             `json:"planId,omitempty"`
	ProviderKind model.ProviderKind `json:"providerKind"`
	Amount       model.Money        `json:"amount"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusBody struct {
	IntentID          string                  `json:"intentId"`
	Status            model.TransactionStatus `json:"status"`
	Code              string                  `json:"code,omitempty"`
	ResultDescription string                  `json:"resultDescription,omitempty"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _ := CurrentUser(ctx)
	tr := s.translator(r)

	var req initiateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: domain.CodeInvalidIntent, Message: tr.Code(domain.CodeInvalidIntent)})
		return
	}

	res, err := s.payments.Initiate(ctx, usecase.InitiateRequest{
		IntentID:  req.IntentID,
		UserID:    uid,
		PlanID:    req.PlanID,
		Provider:  req.ProviderKind,
		Amount:    req.Amount,
		UserAgent: r.UserAgent(),
	}, s.sessions.ForRequest(w, r))
	if err == nil {
		writeJSON(w, http.StatusOK, res)
		return
	}

	code := domain.CodeOf(err)
	switch domain.KindOf(err) {
	case domain.KindValidation:
		writeJSON(w, http.StatusBadRequest, errorBody{Code: code, Message: tr.Code(code)})
	case domain.KindProviderTransient:
		if res == nil {
			res = &usecase.InitiateResult{Status: model.StatusFailed}
		}
		res.Code, res.Message = domain.CodeNetworkError, tr.Code(domain.CodeNetworkError)
		writeJSON(w, http.StatusBadGateway, res)
	case domain.KindProviderDecline:
		if res == nil {
			res = &usecase.InitiateResult{Status: model.StatusFailed, Code: code}
		}
		if res.Message == "" {
			res.Message = tr.Code(res.Code)
		}
		writeJSON(w, http.StatusPaymentRequired, res)
	default:
		logging.With(ctx, s.log).Error().Err(err).Msg("initiate failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: domain.CodeProviderError, Message: tr.Code(domain.CodeProviderError)})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _ := CurrentUser(ctx)
	tr := s.translator(r)

	intent, err := s.payments.CheckStatus(ctx, chi.URLParam(r, "intentId"), uid)
	if err != nil {
		if domain.KindOf(err) == domain.KindCorrelation {
			writeJSON(w, http.StatusNotFound, errorBody{Code: domain.CodeIntentNotFound, Message: tr.Code(domain.CodeIntentNotFound)})
			return
		}
		logging.With(ctx, s.log).Error().Err(err).Msg("status check failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: domain.CodeProviderError, Message: tr.Code(domain.CodeProviderError)})
		return
	}
	body := statusBody{IntentID: intent.ID, Status: intent.Status}
	if intent.Status == model.StatusFailed {
		body.Code = intent.FailureCode
		body.ResultDescription = intent.FailureMessage
		if body.ResultDescription == "" {
			body.ResultDescription = tr.Code(intent.FailureCode)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCardWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.With(ctx, s.log)

	var p model.CardWebhookPayload
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		p = model.CardWebhookPayload{
			CustomerID:     r.PostForm.Get("customerId"),
			CustomerCardID: r.PostForm.Get("customerCardId"),
			OperationType:  r.PostForm.Get("operationType"),
			UpdateDate:     r.PostForm.Get("updateDate"),
			IntegrityHash:  r.PostForm.Get("integrityHash"),
		}
	} else if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	err := s.payments.HandleCardWebhook(ctx, p)
	switch {
	case err == nil, domain.KindOf(err) == domain.KindCorrelation:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	case domain.KindOf(err) == domain.KindIntegrity:
		log.Warn().Msg("webhook rejected: integrity mismatch")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	default:
		// non-2xx makes the vault redeliver
		log.Error().Err(err).Msg("webhook processing failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tr := s.translator(r)

	outcome := chi.URLParam(r, "outcome")
	switch outcome {
	case usecase.OutcomeSuccess, usecase.OutcomeFailure, usecase.OutcomeCancel:
	default:
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if s.bounce(w, r) {
		return
	}

	res, err := s.payments.Resume(ctx, usecase.ReturnParams{
		Outcome:  outcome,
		IntentID: r.Form.Get("intentId"),
		Status:   r.Form.Get("status"),
		Code:     firstNonEmpty(r.Form.Get("code"), r.Form.Get("errorCode")),
	}, s.sessions.ForRequest(w, r))
	if err != nil {
		code := domain.CodeOf(err)
		if domain.KindOf(err) != domain.KindCorrelation {
			logging.With(ctx, s.log).Error().Err(err).Msg("resume failed")
			code = domain.CodeProviderError
		}
		s.renderResult(w, tr, &usecase.Outcome{Status: model.StatusFailed, Code: code})
		return
	}
	s.renderResult(w, tr, res)
}

func (s *Server) translator(r *http.Request) *i18n.Translator {
	for _, part := range strings.Split(r.Header.Get("Accept-Language"), ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		lang := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if t, ok := s.translators[lang]; ok {
			return t
		}
	}
	return s.translators[s.opts.DefaultLanguage]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var errNoTranslator = errors.New("no translator for the default language")

// Validate reports configuration mistakes that would otherwise surface per request.
func (s *Server) Validate() error {
	if s.translators[s.opts.DefaultLanguage] == nil {
		return errNoTranslator
	}
	return nil
}
