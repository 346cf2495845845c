package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"littlefidan/internal/app"
	"littlefidan/internal/domain"
)

type categoryRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	SortOrder   int    `json:"sortOrder"`
}

func (c categoryRequest) input() app.CategoryInput {
	return app.CategoryInput{
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		SortOrder:   c.SortOrder,
	}
}

func (s *Server) handleAdminCategories(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		categories, err := s.app.ListCategories(r.Context())
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": categories, "count": len(categories)})
	case http.MethodPost:
		var req categoryRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		category, err := s.app.CreateCategory(r.Context(), req.input())
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		s.audit(r, "api.admin.category.create", "success", "user_id", user.ID, "category_id", category.ID)
		writeJSON(w, http.StatusCreated, category)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminCategoryByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/categories/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req categoryRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		category, err := s.app.UpdateCategory(r.Context(), id, req.input())
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, category)
	case http.MethodDelete:
		if err := s.app.DeleteCategory(r.Context(), id); err != nil {
			s.writeAppError(w, err)
			return
		}
		s.audit(r, "api.admin.category.delete", "success", "user_id", user.ID, "category_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

type productRequest struct {
	CategoryID  string   `json:"categoryId"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	AccessType  string   `json:"accessType"`
	PriceCents  int64    `json:"priceCents"`
	Currency    string   `json:"currency"`
	Tags        []string `json:"tags"`
	Published   bool     `json:"published"`
}

func (p productRequest) input() app.ProductInput {
	return app.ProductInput{
		CategoryID:  p.CategoryID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Type:        domain.ProductType(p.Type),
		AccessType:  domain.AccessType(p.AccessType),
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		Tags:        p.Tags,
		Published:   p.Published,
	}
}

func (s *Server) handleAdminProducts(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		products, err := s.app.ListProducts(r.Context(), productFilterFromQuery(r), true)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": products, "count": len(products)})
	case http.MethodPost:
		var req productRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		product, err := s.app.CreateProduct(r.Context(), req.input())
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		s.audit(r, "api.admin.product.create", "success", "user_id", user.ID, "product_id", product.ID)
		writeJSON(w, http.StatusCreated, product)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminProductByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/products/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "":
		s.handleAdminProduct(w, r, user, id)
	case "publish":
		s.handleAdminProductPublish(w, r, user, id)
	case "files":
		s.handleAdminProductFiles(w, r, user, id)
	case "bundle":
		s.handleAdminProductBundle(w, r, user, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleAdminProduct(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		detail, err := s.app.GetProductDetailByID(r.Context(), id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case http.MethodPut:
		var req productRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		product, err := s.app.UpdateProduct(r.Context(), id, req.input())
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodDelete:
		if err := s.app.DeleteProduct(r.Context(), id); err != nil {
			s.writeAppError(w, err)
			return
		}
		s.audit(r, "api.admin.product.delete", "success", "user_id", user.ID, "product_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminProductPublish(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Published bool `json:"published"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.SetProductPublished(r.Context(), id, req.Published); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "api.admin.product.publish", "success", "user_id", user.ID, "product_id", id, "published", req.Published)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminProductFiles(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	upload, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer upload.Close()
	data, err := io.ReadAll(upload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload failed")
		return
	}
	sortOrder, _ := strconv.Atoi(r.FormValue("sortOrder"))
	in := app.FileInput{
		Name:           firstNonEmpty(r.FormValue("name"), header.Filename),
		MimeType:       header.Header.Get("Content-Type"),
		Data:           data,
		IsPreview:      r.FormValue("isPreview") == "true",
		AccessOverride: domain.AccessType(r.FormValue("accessOverride")),
		SortOrder:      sortOrder,
	}
	file, err := s.app.AttachFile(r.Context(), id, in)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "api.admin.file.attach", "success", "user_id", user.ID, "product_id", id, "file_id", file.ID)
	writeJSON(w, http.StatusCreated, file)
}

func (s *Server) handleAdminProductBundle(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		ProductID string `json:"productId"`
		SortOrder int    `json:"sortOrder"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	item, err := s.app.AddBundleComponent(r.Context(), id, req.ProductID, req.SortOrder)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "api.admin.bundle.add", "success", "user_id", user.ID, "bundle_id", id, "product_id", req.ProductID)
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleAdminFileByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/files/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DetachFile(r.Context(), id); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "api.admin.file.detach", "success", "user_id", user.ID, "file_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminBundleItemByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/bundle-items/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RemoveBundleComponent(r.Context(), id); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "api.admin.bundle.remove", "success", "user_id", user.ID, "bundle_item_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	status := domain.OrderStatus(q.Get("status"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	orders, err := s.app.ListOrdersByStatus(r.Context(), status, limit, offset)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orders, "count": len(orders)})
}

func (s *Server) handleAdminOrderByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/orders/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || sub != "refund" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	order, err := s.app.RefundOrder(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "api.admin.order.refund", "success", "user_id", user.ID, "order_id", id)
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleAdminSettings(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	settings, err := s.app.ListSettings(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": settings, "count": len(settings)})
}

func (s *Server) handleAdminSettingByKey(w http.ResponseWriter, r *http.Request, user domain.User) {
	key := strings.TrimPrefix(r.URL.Path, "/api/admin/settings/")
	if key == "" || strings.Contains(key, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		setting, err := s.app.GetSetting(r.Context(), key)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, setting)
	case http.MethodPut:
		value, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body failed")
			return
		}
		setting, err := s.app.PutSetting(r.Context(), key, value)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		s.audit(r, "api.admin.setting.put", "success", "user_id", user.ID, "key", key)
		writeJSON(w, http.StatusOK, setting)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminIllustrations(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
		Size   string `json:"size"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	illustration, err := s.app.GenerateIllustration(r.Context(), req.Prompt, req.Size)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "api.admin.illustration", "success", "user_id", user.ID, "key", illustration.Key)
	writeJSON(w, http.StatusCreated, illustration)
}

func (s *Server) handleAdminExport(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	report, err := s.app.ExportCatalog(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": report, "count": len(report)})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
