// Package handler содержит HTTP-обработчики API колеса скидок и купонов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-promotions/internal/middleware"
	"github.com/mmeshcher/storefront-promotions/internal/model"
	"github.com/mmeshcher/storefront-promotions/internal/service"
)

// maxBodySize ограничивает размер тела запроса.
const maxBodySize = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	Now() time.Time

	LoadWheel(ctx context.Context) (*model.WheelConfig, error)
	ReplaceSegments(ctx context.Context, segments []model.Segment, updatedBy string) (*model.WheelConfig, error)
	Spin(ctx context.Context, identity, category string) (*model.SpinResult, error)
	CheckUsage(ctx context.Context, identity string) (bool, error)

	ValidateCoupon(ctx context.Context, code string, cartTotal float64) (*model.Quote, error)
	RedeemCoupon(ctx context.Context, identity, code string, cartTotal float64, orderRef string) (*model.RedeemResult, error)

	CreateCoupon(ctx context.Context, c *model.Coupon) (*model.Coupon, error)
	GetCoupon(ctx context.Context, code string) (*model.Coupon, error)
	ListCoupons(ctx context.Context) ([]model.Coupon, error)
	UpdateCoupon(ctx context.Context, code string, upd *model.Coupon) (*model.Coupon, error)
	DeleteCoupon(ctx context.Context, code string) error
}

// Handler реализует HTTP-обработчики API промоакций.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	spinLimiter    middleware.Limiter
	validate       *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// spinLimiter может быть nil: тогда частота вращений не ограничивается.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, spinLimiter middleware.Limiter) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		spinLimiter:    spinLimiter,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

// decodeJSON читает тело запроса в dst и проверяет его теги validate.
// Пустое тело допустимо, только если allowEmpty.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed JSON body")
			return false
		}
	}

	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", validationMessage(err))
		return false
	}

	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// errorStatus сопоставляет доменные ошибки с HTTP-статусом и видом ошибки.
var errorStatus = []struct {
	err    error
	status int
	kind   string
}{
	{service.ErrInvalidProbabilitySum, http.StatusBadRequest, "InvalidProbabilitySum"},
	{service.ErrInvalidSegment, http.StatusBadRequest, "InvalidSegment"},
	{service.ErrNoEligibleSegments, http.StatusBadRequest, "NoEligibleSegments"},
	{service.ErrNoValidProbabilities, http.StatusBadRequest, "NoValidProbabilities"},
	{service.ErrAlreadyUsed, http.StatusForbidden, "AlreadyUsed"},
	{service.ErrNotFound, http.StatusNotFound, "NotFound"},
	{service.ErrExpired, http.StatusBadRequest, "Expired"},
	{service.ErrLimitReached, http.StatusBadRequest, "LimitReached"},
	{service.ErrBelowMinimum, http.StatusBadRequest, "BelowMinimum"},
	{service.ErrInvalidCoupon, http.StatusBadRequest, "InvalidCoupon"},
	{service.ErrCouponExists, http.StatusConflict, "CouponExists"},
	{service.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
	{service.ErrInvalidOrderRef, http.StatusBadRequest, "InvalidOrderRef"},
	{service.ErrAlreadyRedeemed, http.StatusConflict, "AlreadyRedeemed"},
	{service.ErrCouponChanged, http.StatusConflict, "CouponChanged"},
}

// handleError пишет ответ для ошибки сервиса. Неизвестные ошибки журналируются
// и отдаются клиенту как 500 без внутренних подробностей.
func (h *Handler) handleError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.kind, err.Error())
			return
		}
	}

	h.logger.Error(op+" error", append(fields, zap.Error(err))...)
	writeError(w, http.StatusInternalServerError, "Internal", http.StatusText(http.StatusInternalServerError))
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "bearer token is required")
	}
	return identity, ok
}

// Healthz сообщает о готовности сервиса: 503, если хранилище недоступно.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
