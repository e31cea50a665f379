package handler

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-promotions/internal/middleware"
	"github.com/mmeshcher/storefront-promotions/internal/model"
)

type wheelResponse struct {
	ID        string          `json:"id"`
	Segments  []model.Segment `json:"segments"`
	UpdatedBy string          `json:"updatedBy"`
	SpinCount int64           `json:"spinCount"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

func toWheelResponse(cfg *model.WheelConfig) wheelResponse {
	return wheelResponse{
		ID:        cfg.ID.String(),
		Segments:  cfg.Segments,
		UpdatedBy: cfg.UpdatedBy,
		SpinCount: cfg.SpinCount,
		CreatedAt: cfg.CreatedAt.Format(time.RFC3339),
		UpdatedAt: cfg.UpdatedAt.Format(time.RFC3339),
	}
}

// GetWheel возвращает текущую конфигурацию колеса.
func (h *Handler) GetWheel(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.LoadWheel(r.Context())
	if err != nil {
		h.handleError(w, "load wheel", err)
		return
	}

	writeJSON(w, http.StatusOK, toWheelResponse(cfg))
}

type segmentRequest struct {
	Label       string   `json:"label" validate:"required,max=64"`
	Reward      string   `json:"reward" validate:"max=256"`
	CouponCode  string   `json:"couponCode" validate:"required,max=32"`
	Probability *float64 `json:"probability" validate:"required"`
	Color       string   `json:"color"`
	Active      *bool    `json:"active"`
	Category    string   `json:"category" validate:"max=64"`
}

type updateWheelRequest struct {
	Segments  []segmentRequest `json:"segments" validate:"required,min=1,max=64,dive"`
	UpdatedBy string           `json:"updatedBy" validate:"max=128"`
}

// UpdateWheel целиком заменяет секторы колеса. Сектор без поля active считается активным.
func (h *Handler) UpdateWheel(w http.ResponseWriter, r *http.Request) {
	var req updateWheelRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}

	updatedBy := strings.TrimSpace(req.UpdatedBy)
	if updatedBy == "" {
		updatedBy, _ = middleware.GetIdentityFromContext(r.Context())
	}

	segments := make([]model.Segment, 0, len(req.Segments))
	for _, s := range req.Segments {
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		segments = append(segments, model.Segment{
			Label:       s.Label,
			Reward:      s.Reward,
			CouponCode:  s.CouponCode,
			Probability: *s.Probability,
			Color:       s.Color,
			Active:      active,
			Category:    s.Category,
		})
	}

	cfg, err := h.service.ReplaceSegments(r.Context(), segments, updatedBy)
	if err != nil {
		h.handleError(w, "replace segments", err, zap.String("updatedBy", updatedBy))
		return
	}

	writeJSON(w, http.StatusOK, toWheelResponse(cfg))
}

type spinRequest struct {
	Category string `json:"category" validate:"max=64"`
}

type rewardResponse struct {
	CouponCode string               `json:"couponCode"`
	Redeemable bool                 `json:"redeemable"`
	Coupon     *model.CouponSummary `json:"coupon,omitempty"`
}

type spinResponse struct {
	Success bool           `json:"success"`
	Segment model.Segment  `json:"segment"`
	Reward  rewardResponse `json:"reward"`
	Message string         `json:"message"`
}

// Spin разыгрывает сектор колеса для текущего покупателя.
// Категорию можно передать в теле запроса или параметром category.
func (h *Handler) Spin(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req spinRequest
	if !h.decodeJSON(w, r, &req, true) {
		return
	}
	if req.Category == "" {
		req.Category = r.URL.Query().Get("category")
	}

	res, err := h.service.Spin(r.Context(), identity, req.Category)
	if err != nil {
		h.handleError(w, "spin", err, zap.String("identity", identity))
		return
	}

	writeJSON(w, http.StatusOK, spinResponse{
		Success: true,
		Segment: res.Reward.Segment,
		Reward: rewardResponse{
			CouponCode: res.Reward.Segment.CouponCode,
			Redeemable: res.Reward.Redeemable,
			Coupon:     res.Reward.Coupon,
		},
		Message: res.Message,
	})
}

type usageResponse struct {
	HasUsed bool   `json:"hasUsed"`
	Message string `json:"message"`
}

// CheckUsage сообщает, крутил ли текущий покупатель колесо.
// Ответ информационный: право на вращение проверяется только в Spin.
func (h *Handler) CheckUsage(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	used, err := h.service.CheckUsage(r.Context(), identity)
	if err != nil {
		h.handleError(w, "check usage", err, zap.String("identity", identity))
		return
	}

	message := "You can spin the discount wheel."
	if used {
		message = "You have already used your discount wheel spin."
	}

	writeJSON(w, http.StatusOK, usageResponse{HasUsed: used, Message: message})
}
