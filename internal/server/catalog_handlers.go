package server

import (
	"net/http"
	"strings"

	"littlefidan/internal/domain"
	"littlefidan/internal/store"
)

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	categories, err := s.app.ListCategories(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": categories,
		"count": len(categories),
	})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	filter := productFilterFromQuery(r)
	products, err := s.app.ListProducts(r.Context(), filter, false)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": products,
		"count": len(products),
	})
}

func (s *Server) handleProductBySlug(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimPrefix(r.URL.Path, "/api/products/")
	if slug == "" || strings.Contains(slug, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	detail, err := s.app.GetProductDetail(r.Context(), slug)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if !detail.Product.Published {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func productFilterFromQuery(r *http.Request) store.ProductFilter {
	q := r.URL.Query()
	filter := store.ProductFilter{
		CategoryID: q.Get("category"),
		Search:     q.Get("q"),
	}
	switch q.Get("type") {
	case string(domain.ProductSingle):
		filter.Type = domain.ProductSingle
	case string(domain.ProductBundle):
		filter.Type = domain.ProductBundle
	}
	return filter
}
