package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/beststore-system/internal/middleware"
	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/repository"
	"github.com/mmeshcher/beststore-system/internal/service"
)

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type categoryRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Tags string `json:"tags"`
}

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Tags string `json:"tags"`
}

func toCategoryResponse(c *model.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, URL: c.URL, Tags: c.Tags}
}

// CreateCategory создаёт категорию. Доступно только администратору.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c := &model.Category{Name: req.Name, URL: req.URL, Tags: req.Tags}
	id, err := h.service.CreateCategory(r.Context(), c)
	if err != nil {
		if errors.Is(err, service.ErrInvalidProduct) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("create category error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	c.ID = id

	writeJSON(w, http.StatusCreated, toCategoryResponse(c))
}

// GetCategory возвращает категорию по идентификатору.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get category error", zap.Error(err), zap.Int64("categoryID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// ListCategories возвращает все категории.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("list categories error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]categoryResponse, 0, len(categories))
	for i := range categories {
		resp = append(resp, toCategoryResponse(&categories[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateCategory обновляет категорию. Доступно только администратору.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c := &model.Category{ID: id, Name: req.Name, URL: req.URL, Tags: req.Tags}
	if err := h.service.UpdateCategory(r.Context(), c); err != nil {
		switch {
		case errors.Is(err, repository.ErrCategoryNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrInvalidProduct):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("update category error", zap.Error(err), zap.Int64("categoryID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// DeleteCategory удаляет категорию. Доступно только администратору.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("delete category error", zap.Error(err), zap.Int64("categoryID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type productRequest struct {
	Name             string  `json:"name"`
	Brand            string  `json:"brand"`
	Price            float64 `json:"price"`
	Description      string  `json:"description"`
	StockQuantity    int64   `json:"stock_quantity"`
	IsAvailable      bool    `json:"is_available"`
	PointsPercentage float64 `json:"points_percentage"`
	MaxPoints        int64   `json:"max_points"`
	CategoryIDs      []int64 `json:"category_ids"`
}

func (req productRequest) toInput() service.ProductInput {
	return service.ProductInput{
		Name:             req.Name,
		Brand:            req.Brand,
		Price:            req.Price,
		Description:      req.Description,
		StockQuantity:    req.StockQuantity,
		IsAvailable:      req.IsAvailable,
		PointsPercentage: req.PointsPercentage,
		MaxPoints:        req.MaxPoints,
		CategoryIDs:      req.CategoryIDs,
	}
}

type productResponse struct {
	ID               int64              `json:"id"`
	Name             string             `json:"name"`
	Brand            string             `json:"brand"`
	Price            float64            `json:"price"`
	Description      string             `json:"description"`
	StockQuantity    int64              `json:"stock_quantity"`
	IsAvailable      bool               `json:"is_available"`
	PointsPercentage float64            `json:"points_percentage"`
	MaxPoints        int64              `json:"max_points"`
	CreatedAt        string             `json:"created_at"`
	Categories       []categoryResponse `json:"categories,omitempty"`
}

func toProductResponse(p *model.Product) productResponse {
	resp := productResponse{
		ID:               p.ID,
		Name:             p.Name,
		Brand:            p.Brand,
		Price:            p.Price.Decimal(),
		Description:      p.Description,
		StockQuantity:    p.StockQuantity,
		IsAvailable:      p.IsAvailable,
		PointsPercentage: p.PointsPercentage.Percent(),
		MaxPoints:        int64(p.MaxPoints),
		CreatedAt:        p.CreatedAt.Format(time.RFC3339),
	}
	for i := range p.Categories {
		resp.Categories = append(resp.Categories, toCategoryResponse(&p.Categories[i]))
	}
	return resp
}

// CreateProduct создаёт товар. Доступно только администратору.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateProduct(r.Context(), req.toInput())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidProduct), errors.Is(err, repository.ErrCategoryNotFound):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("create product error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.logger.Error("get created product error", zap.Error(err), zap.Int64("productID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get product error", zap.Error(err), zap.Int64("productID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// ListProducts возвращает все товары.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("list products error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, toProductResponse(&products[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateProduct обновляет карточку товара. Доступно только администратору.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateProduct(r.Context(), id, req.toInput()); err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrInvalidProduct):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("update product error", zap.Error(err), zap.Int64("productID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type stockRequest struct {
	StockQuantity int64 `json:"stock_quantity"`
}

// UpdateStock выставляет остаток товара. Доступно только администратору.
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetStock(r.Context(), id, req.StockQuantity); err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrInvalidProduct):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("update stock error", zap.Error(err), zap.Int64("productID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteProduct удаляет товар. Доступно только администратору.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("delete product error", zap.Error(err), zap.Int64("productID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type couponRequest struct {
	UserID         int64   `json:"user_id"`
	DiscountAmount float64 `json:"discount_amount"`
	ExpiryDate     string  `json:"expiry_date"`
}

type couponResponse struct {
	ID             int64   `json:"id"`
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discount_amount"`
	ExpiryDate     string  `json:"expiry_date"`
	IsUsed         bool    `json:"is_used"`
	UserID         int64   `json:"user_id"`
}

func toCouponResponse(c *model.Coupon) couponResponse {
	return couponResponse{
		ID:             c.ID,
		Code:           c.Code,
		DiscountAmount: c.DiscountAmount.Decimal(),
		ExpiryDate:     c.ExpiryDate.Format(time.RFC3339),
		IsUsed:         c.IsUsed,
		UserID:         c.UserID,
	}
}

// CreateCoupon создаёт купон для пользователя. Доступно только администратору.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	expiry, err := time.Parse(time.RFC3339, req.ExpiryDate)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.CreateCoupon(r.Context(), req.UserID, req.DiscountAmount, expiry)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCoupon) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("create coupon error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toCouponResponse(c))
}

// ListCoupons возвращает все купоны. Доступно только администратору.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.service.ListCoupons(r.Context())
	if err != nil {
		h.logger.Error("list coupons error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]couponResponse, 0, len(coupons))
	for i := range coupons {
		resp = append(resp, toCouponResponse(&coupons[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteCoupon удаляет купон. Доступно только администратору.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteCoupon(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("delete coupon error", zap.Error(err), zap.Int64("couponID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

// ApplyCoupon помечает купон использованным.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserIDFromContext(r.Context()); !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.ApplyCoupon(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			http.Error(w, "invalid or expired coupon", http.StatusBadRequest)
			return
		}
		h.logger.Error("apply coupon error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toCouponResponse(c))
}
