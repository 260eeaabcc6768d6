package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/lherron/cartsync/internal/backend"
	"github.com/lherron/cartsync/internal/domain"
)

const maxBodyBytes = 1 << 20

// Response is the envelope every endpoint answers with.
type Response struct {
	Data    interface{}   `json:"data"`
	Errors  []ErrorDetail `json:"errors,omitempty"`
	Message string        `json:"message,omitempty"`
}

// ErrorDetail is one entry of Response.Errors.
type ErrorDetail struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/categories", s.withAuth(s.handleCategoriesList))
	mux.HandleFunc("POST /api/v1/categories", s.withAuth(s.handleCategoriesCreate))
	mux.HandleFunc("GET /api/v1/categories/{slug}", s.withAuth(s.handleCategoriesGet))
	mux.HandleFunc("PUT /api/v1/categories/{slug}", s.withAuth(s.handleCategoriesUpdate))
	mux.HandleFunc("DELETE /api/v1/categories/{slug}", s.withAuth(s.handleCategoriesDelete))
	mux.HandleFunc("GET /api/v1/categories/{slug}/subcategories", s.withAuth(s.handleSubcategories))

	mux.HandleFunc("GET /api/v1/products", s.withAuth(s.handleProductsList))
	mux.HandleFunc("POST /api/v1/products", s.withAuth(s.handleProductsCreate))
	mux.HandleFunc("GET /api/v1/products/{id}", s.withAuth(s.handleProductsGet))
	mux.HandleFunc("PUT /api/v1/products/{id}", s.withAuth(s.handleProductsUpdate))
	mux.HandleFunc("DELETE /api/v1/products/{id}", s.withAuth(s.handleProductsDelete))
	mux.HandleFunc("PATCH /api/v1/products/{id}/images", s.withAuth(s.handleProductImages))
	mux.HandleFunc("GET /api/v1/categories/{slug}/products", s.withAuth(s.handleCategoryProducts))

	mux.HandleFunc("GET /api/v1/flash-sale", s.withAuth(s.handleFlashSale))

	mux.HandleFunc("GET /api/v1/users/{id}/wishlist", s.withAuth(s.handleWishlistGet))
	mux.HandleFunc("PUT /api/v1/users/{id}/wishlist", s.withAuth(s.handleWishlistPut))
	mux.HandleFunc("GET /api/v1/users/{id}/cart", s.withAuth(s.handleCartGet))
	mux.HandleFunc("PUT /api/v1/users/{id}/cart", s.withAuth(s.handleCartPut))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Data: "OK"})
}

func (s *Server) handleCategoriesList(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.Catalog.ListCategories(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: cats})
}

func (s *Server) handleCategoriesCreate(w http.ResponseWriter, r *http.Request) {
	var req backend.CategoryParams
	if !decodeJSON(w, r, &req) {
		return
	}
	cat, err := s.store.Catalog.CreateCategory(r.Context(), req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/categories/"+cat.Slug)
	writeJSON(w, http.StatusCreated, Response{Data: cat})
}

func (s *Server) handleCategoriesGet(w http.ResponseWriter, r *http.Request) {
	cat, err := s.store.Catalog.Category(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: cat})
}

func (s *Server) handleCategoriesUpdate(w http.ResponseWriter, r *http.Request) {
	var req backend.CategoryParams
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := s.store.Catalog.UpdateCategory(r.Context(), r.PathValue("slug"), req); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategoriesDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Catalog.DeleteCategory(r.Context(), r.PathValue("slug")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubcategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.Catalog.Subcategories(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: cats})
}

func (s *Server) handleProductsList(w http.ResponseWriter, r *http.Request) {
	filter, err := productFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	s.writeProductPage(w, r, filter)
}

func (s *Server) handleCategoryProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := productFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	filter.Category = r.PathValue("slug")
	s.writeProductPage(w, r, filter)
}

func (s *Server) writeProductPage(w http.ResponseWriter, r *http.Request, filter backend.ProductFilter) {
	page, err := s.store.Catalog.ListProducts(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: page})
}

func (s *Server) handleProductsCreate(w http.ResponseWriter, r *http.Request) {
	var req backend.ProductParams
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.store.Catalog.CreateProduct(r.Context(), req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/products/"+p.ID)
	writeJSON(w, http.StatusCreated, Response{Data: map[string]string{"id": p.ID}})
}

func (s *Server) handleProductsGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Catalog.Product(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: p})
}

func (s *Server) handleProductsUpdate(w http.ResponseWriter, r *http.Request) {
	var req backend.ProductParams
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := s.store.Catalog.UpdateProduct(r.Context(), r.PathValue("id"), req); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProductsDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Catalog.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProductImages(w http.ResponseWriter, r *http.Request) {
	var req backend.ImagesParams
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.Catalog.UpdateProductImages(r.Context(), r.PathValue("id"), req); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlashSale(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Data: s.store.Catalog.Sale()})
}

func (s *Server) handleWishlistGet(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.Users.Wishlist(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: out})
}

func (s *Server) handleWishlistPut(w http.ResponseWriter, r *http.Request) {
	var req domain.WishlistPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.store.Users.ReplaceWishlist(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: out})
}

func (s *Server) handleCartGet(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.Users.Cart(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: out})
}

func (s *Server) handleCartPut(w http.ResponseWriter, r *http.Request) {
	var req domain.CartPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.store.Users.ReplaceCart(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: out})
}

func productFilter(r *http.Request) (backend.ProductFilter, error) {
	q := r.URL.Query()
	f := backend.ProductFilter{
		Category:    q.Get("category"),
		Subcategory: q.Get("subcategory"),
		Search:      q.Get("search"),
		Sort:        q.Get("sort"),
	}
	var err error
	if f.Page, err = intParam(q.Get("page")); err != nil {
		return f, fmt.Errorf("page: %w", err)
	}
	if f.PageSize, err = intParam(q.Get("pageSize")); err != nil {
		return f, fmt.Errorf("pageSize: %w", err)
	}
	if f.MinPrice, err = floatParam(q.Get("minPrice")); err != nil {
		return f, fmt.Errorf("minPrice: %w", err)
	}
	if f.MaxPrice, err = floatParam(q.Get("maxPrice")); err != nil {
		return f, fmt.Errorf("maxPrice: %w", err)
	}
	return f, nil
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func floatParam(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "validation_error", vErr.Error())
	case errors.Is(err, backend.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, Response{Errors: []ErrorDetail{{Code: code, Detail: detail}}})
}
