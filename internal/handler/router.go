package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/beststore-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		// Публичные маршруты.
		r.Post("/account/register", h.Register)
		r.Post("/account/login", h.Login)
		r.Post("/account/forgot-password", h.ForgotPassword)
		r.Post("/account/reset-password", h.ResetPassword)

		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/categories", h.ListCategories)
		r.Get("/categories/{id}", h.GetCategory)

		// Маршруты аутентифицированных пользователей.
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/account/profile", h.GetProfile)
			r.Put("/account/profile", h.UpdateProfile)
			r.Put("/account/password", h.UpdatePassword)

			r.Get("/wallet", h.GetWallet)
			r.Post("/wallet/top-up", h.TopUpWallet)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{orderNumber}", h.GetOrder)

			r.Post("/coupons/apply", h.ApplyCoupon)
		})

		// Маршруты администратора.
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(h.authMiddleware.RequireAdmin)

			r.Post("/products", h.CreateProduct)
			r.Put("/products/{id}", h.UpdateProduct)
			r.Put("/products/{id}/stock", h.UpdateStock)
			r.Delete("/products/{id}", h.DeleteProduct)

			r.Post("/categories", h.CreateCategory)
			r.Put("/categories/{id}", h.UpdateCategory)
			r.Delete("/categories/{id}", h.DeleteCategory)

			r.Post("/coupons", h.CreateCoupon)
			r.Get("/coupons", h.ListCoupons)
			r.Delete("/coupons/{id}", h.DeleteCoupon)

			r.Get("/admin/orders", h.ListOrders)
			r.Put("/admin/orders/{orderNumber}", h.UpdateOrder)
			r.Delete("/admin/orders/{orderNumber}", h.DeleteOrder)

			r.Get("/admin/users", h.ListUsers)
			r.Get("/admin/users/{id}", h.GetUser)
			r.Delete("/admin/users/{id}", h.DeleteUser)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
