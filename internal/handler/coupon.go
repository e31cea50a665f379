package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-promotions/internal/model"
)

type validateRequest struct {
	Code      string   `json:"code" validate:"required,max=64"`
	CartTotal *float64 `json:"cartTotal" validate:"required,gte=0,lte=1e12"`
}

type validateResponse struct {
	Valid          bool                `json:"valid"`
	DiscountAmount float64             `json:"discountAmount"`
	Coupon         model.CouponSummary `json:"coupon"`
}

// ValidateCoupon рассчитывает скидку по купону, не расходуя его.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}

	quote, err := h.service.ValidateCoupon(r.Context(), req.Code, *req.CartTotal)
	if err != nil {
		h.handleError(w, "validate coupon", err, zap.String("code", req.Code))
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:          true,
		DiscountAmount: quote.DiscountAmount,
		Coupon:         quote.Coupon,
	})
}

type redeemRequest struct {
	Code      string   `json:"code" validate:"required,max=64"`
	CartTotal *float64 `json:"cartTotal" validate:"required,gte=0,lte=1e12"`
	OrderRef  string   `json:"orderRef" validate:"required,max=128"`
}

type redeemResponse struct {
	Redeemed       bool                `json:"redeemed"`
	RedemptionID   string              `json:"redemptionId"`
	OrderRef       string              `json:"orderRef"`
	DiscountAmount float64             `json:"discountAmount"`
	FinalTotal     float64             `json:"finalTotal"`
	Coupon         model.CouponSummary `json:"coupon"`
}

// RedeemCoupon применяет купон к заказу текущего покупателя.
func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req redeemRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}

	res, err := h.service.RedeemCoupon(r.Context(), identity, req.Code, *req.CartTotal, req.OrderRef)
	if err != nil {
		h.handleError(w, "redeem coupon", err,
			zap.String("identity", identity),
			zap.String("code", req.Code),
			zap.String("orderRef", req.OrderRef),
		)
		return
	}

	writeJSON(w, http.StatusOK, redeemResponse{
		Redeemed:       true,
		RedemptionID:   res.Redemption.ID.String(),
		OrderRef:       res.Redemption.OrderRef,
		DiscountAmount: res.Redemption.Discount,
		FinalTotal:     res.FinalTotal,
		Coupon:         res.Coupon,
	})
}

type couponRequest struct {
	Code          string     `json:"code" validate:"max=32"`
	DiscountType  string     `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue *float64   `json:"discountValue" validate:"required,gte=0,lte=1e12"`
	MinPurchase   float64    `json:"minPurchase" validate:"gte=0,lte=1e12"`
	MaxDiscount   *float64   `json:"maxDiscount" validate:"omitempty,gte=0,lte=1e12"`
	ValidFrom     *time.Time `json:"validFrom" validate:"required"`
	ValidUntil    *time.Time `json:"validUntil" validate:"required"`
	UsageLimit    *int       `json:"usageLimit" validate:"omitempty,gte=0"`
	IsActive      *bool      `json:"isActive"`
}

func (req *couponRequest) toModel() *model.Coupon {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	return &model.Coupon{
		Code:          req.Code,
		DiscountType:  model.DiscountType(req.DiscountType),
		DiscountValue: *req.DiscountValue,
		MinPurchase:   req.MinPurchase,
		MaxDiscount:   req.MaxDiscount,
		ValidFrom:     *req.ValidFrom,
		ValidUntil:    *req.ValidUntil,
		UsageLimit:    req.UsageLimit,
		IsActive:      active,
	}
}

type couponResponse struct {
	ID            string   `json:"id"`
	Code          string   `json:"code"`
	DiscountType  string   `json:"discountType"`
	DiscountValue float64  `json:"discountValue"`
	MinPurchase   float64  `json:"minPurchase"`
	MaxDiscount   *float64 `json:"maxDiscount,omitempty"`
	ValidFrom     string   `json:"validFrom"`
	ValidUntil    string   `json:"validUntil"`
	UsageLimit    *int     `json:"usageLimit,omitempty"`
	UsedCount     int      `json:"usedCount"`
	IsActive      bool     `json:"isActive"`
	State         string   `json:"state"`
	CreatedAt     string   `json:"createdAt"`
	UpdatedAt     string   `json:"updatedAt"`
}

func (h *Handler) toCouponResponse(c *model.Coupon) couponResponse {
	return couponResponse{
		ID:            c.ID.String(),
		Code:          c.Code,
		DiscountType:  string(c.DiscountType),
		DiscountValue: c.DiscountValue,
		MinPurchase:   c.MinPurchase,
		MaxDiscount:   c.MaxDiscount,
		ValidFrom:     c.ValidFrom.Format(time.RFC3339),
		ValidUntil:    c.ValidUntil.Format(time.RFC3339),
		UsageLimit:    c.UsageLimit,
		UsedCount:     c.UsedCount,
		IsActive:      c.IsActive,
		State:         string(c.State(h.service.Now())),
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     c.UpdatedAt.Format(time.RFC3339),
	}
}

// ListCoupons возвращает все купоны.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.service.ListCoupons(r.Context())
	if err != nil {
		h.handleError(w, "list coupons", err)
		return
	}

	resp := make([]couponResponse, 0, len(coupons))
	for i := range coupons {
		resp = append(resp, h.toCouponResponse(&coupons[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateCoupon создаёт купон.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}

	c, err := h.service.CreateCoupon(r.Context(), req.toModel())
	if err != nil {
		h.handleError(w, "create coupon", err, zap.String("code", req.Code))
		return
	}

	h.logger.Info("coupon created", zap.String("code", c.Code))
	writeJSON(w, http.StatusCreated, h.toCouponResponse(c))
}

// GetCoupon возвращает купон по коду из пути.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	c, err := h.service.GetCoupon(r.Context(), code)
	if err != nil {
		h.handleError(w, "get coupon", err, zap.String("code", code))
		return
	}

	writeJSON(w, http.StatusOK, h.toCouponResponse(c))
}

// UpdateCoupon заменяет редактируемые поля купона.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req couponRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}

	c, err := h.service.UpdateCoupon(r.Context(), code, req.toModel())
	if err != nil {
		h.handleError(w, "update coupon", err, zap.String("code", code))
		return
	}

	h.logger.Info("coupon updated", zap.String("code", c.Code))
	writeJSON(w, http.StatusOK, h.toCouponResponse(c))
}

// DeleteCoupon удаляет купон.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.service.DeleteCoupon(r.Context(), code); err != nil {
		h.handleError(w, "delete coupon", err, zap.String("code", code))
		return
	}

	h.logger.Info("coupon deleted", zap.String("code", code))
	w.WriteHeader(http.StatusNoContent)
}
