package app

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"littlefidan/internal/domain"
	"littlefidan/internal/pdfinfo"
	"littlefidan/internal/store"
	"littlefidan/internal/util"
)

// ProductDetail is a product with its files and, for bundles, components.
type ProductDetail struct {
	Product    domain.Product      `json:"product"`
	Files      []domain.ProductFile `json:"files"`
	Components []domain.Product    `json:"components,omitempty"`
}

// ProductInput carries admin-submitted product fields.
type ProductInput struct {
	CategoryID  string
	Name        string
	Slug        string
	Description string
	Type        domain.ProductType
	AccessType  domain.AccessType
	PriceCents  int64
	Currency    string
	Tags        []string
	Published   bool
}

// CategoryInput carries admin-submitted category fields.
type CategoryInput struct {
	Name        string
	Slug        string
	Description string
	SortOrder   int
}

// ListCategories returns categories for navigation.
func (a *App) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return a.store.ListCategories(ctx)
}

// CreateCategory registers a new category.
func (a *App) CreateCategory(ctx context.Context, in CategoryInput) (domain.Category, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Category{}, fmt.Errorf("%w: category name is required", ErrValidation)
	}
	c := domain.Category{
		ID:          util.NewID(),
		Name:        strings.TrimSpace(in.Name),
		Slug:        slugOrDerive(in.Slug, in.Name),
		Description: strings.TrimSpace(in.Description),
		SortOrder:   in.SortOrder,
		CreatedAt:   a.now().UTC(),
	}
	if err := a.store.SaveCategory(ctx, c); err != nil {
		return domain.Category{}, fmt.Errorf("save category: %w", err)
	}
	return c, nil
}

// UpdateCategory modifies an existing category.
func (a *App) UpdateCategory(ctx context.Context, id string, in CategoryInput) (domain.Category, error) {
	existing, ok, err := a.store.GetCategory(ctx, id)
	if err != nil {
		return domain.Category{}, fmt.Errorf("get category: %w", err)
	}
	if !ok {
		return domain.Category{}, ErrNotFound
	}
	if strings.TrimSpace(in.Name) != "" {
		existing.Name = strings.TrimSpace(in.Name)
	}
	if strings.TrimSpace(in.Slug) != "" {
		existing.Slug = slugify(in.Slug)
	}
	existing.Description = strings.TrimSpace(in.Description)
	existing.SortOrder = in.SortOrder
	if err := a.store.SaveCategory(ctx, existing); err != nil {
		return domain.Category{}, fmt.Errorf("save category: %w", err)
	}
	return existing, nil
}

// DeleteCategory removes a category. Products keep their category id and
// simply stop resolving it.
func (a *App) DeleteCategory(ctx context.Context, id string) error {
	return a.store.DeleteCategory(ctx, id)
}

// ListProducts returns catalog products. Storefront callers get published
// products only; admins pass includeUnpublished.
func (a *App) ListProducts(ctx context.Context, filter store.ProductFilter, includeUnpublished bool) ([]domain.Product, error) {
	filter.PublishedOnly = !includeUnpublished
	return a.store.ListProducts(ctx, filter)
}

// GetProductDetail resolves a product by slug with files and components.
func (a *App) GetProductDetail(ctx context.Context, slug string) (ProductDetail, error) {
	product, ok, err := a.store.GetProductBySlug(ctx, slug)
	if err != nil {
		return ProductDetail{}, fmt.Errorf("get product: %w", err)
	}
	if !ok {
		return ProductDetail{}, ErrNotFound
	}
	return a.productDetail(ctx, product)
}

// GetProductDetailByID resolves a product by id with files and components.
func (a *App) GetProductDetailByID(ctx context.Context, id string) (ProductDetail, error) {
	product, ok, err := a.store.GetProduct(ctx, id)
	if err != nil {
		return ProductDetail{}, fmt.Errorf("get product: %w", err)
	}
	if !ok {
		return ProductDetail{}, ErrNotFound
	}
	return a.productDetail(ctx, product)
}

func (a *App) productDetail(ctx context.Context, product domain.Product) (ProductDetail, error) {
	detail := ProductDetail{Product: product}
	files, err := a.store.ListProductFiles(ctx, product.ID)
	if err != nil {
		return ProductDetail{}, fmt.Errorf("list files: %w", err)
	}
	detail.Files = files

	if product.Type == domain.ProductBundle {
		items, err := a.store.ListBundleItems(ctx, product.ID)
		if err != nil {
			return ProductDetail{}, fmt.Errorf("list bundle items: %w", err)
		}
		for _, item := range items {
			component, ok, err := a.store.GetProduct(ctx, item.ProductID)
			if err != nil {
				return ProductDetail{}, fmt.Errorf("get component: %w", err)
			}
			if !ok {
				continue
			}
			detail.Components = append(detail.Components, component)
			componentFiles, err := a.store.ListProductFiles(ctx, component.ID)
			if err != nil {
				return ProductDetail{}, fmt.Errorf("list component files: %w", err)
			}
			detail.Files = append(detail.Files, componentFiles...)
		}
	}
	return detail, nil
}

// CreateProduct registers a new product.
func (a *App) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	if err := validateProductInput(in); err != nil {
		return domain.Product{}, err
	}
	nowTime := a.now().UTC()
	p := domain.Product{
		ID:          util.NewID(),
		CategoryID:  in.CategoryID,
		Name:        strings.TrimSpace(in.Name),
		Slug:        slugOrDerive(in.Slug, in.Name),
		Description: strings.TrimSpace(in.Description),
		Type:        in.Type,
		AccessType:  in.AccessType,
		PriceCents:  in.PriceCents,
		Currency:    normalizeCurrency(in.Currency),
		Tags:        in.Tags,
		Published:   in.Published,
		CreatedAt:   nowTime,
		UpdatedAt:   nowTime,
	}
	if err := a.store.SaveProduct(ctx, p); err != nil {
		return domain.Product{}, fmt.Errorf("save product: %w", err)
	}
	return p, nil
}

// UpdateProduct modifies an existing product. The product type is fixed at
// creation; switching a bundle to a single (or back) would strand its
// composition or files.
func (a *App) UpdateProduct(ctx context.Context, id string, in ProductInput) (domain.Product, error) {
	existing, ok, err := a.store.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	if !ok {
		return domain.Product{}, ErrNotFound
	}
	if in.Type != "" && in.Type != existing.Type {
		return domain.Product{}, fmt.Errorf("%w: product type cannot change", ErrValidation)
	}
	in.Type = existing.Type
	if err := validateProductInput(in); err != nil {
		return domain.Product{}, err
	}
	existing.CategoryID = in.CategoryID
	existing.Name = strings.TrimSpace(in.Name)
	existing.Slug = slugOrDerive(in.Slug, in.Name)
	existing.Description = strings.TrimSpace(in.Description)
	existing.AccessType = in.AccessType
	existing.PriceCents = in.PriceCents
	existing.Currency = normalizeCurrency(in.Currency)
	existing.Tags = in.Tags
	existing.Published = in.Published
	existing.UpdatedAt = a.now().UTC()
	if err := a.store.SaveProduct(ctx, existing); err != nil {
		return domain.Product{}, fmt.Errorf("save product: %w", err)
	}
	return existing, nil
}

// SetProductPublished toggles storefront visibility.
func (a *App) SetProductPublished(ctx context.Context, id string, published bool) error {
	existing, ok, err := a.store.GetProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	existing.Published = published
	existing.UpdatedAt = a.now().UTC()
	if err := a.store.SaveProduct(ctx, existing); err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

// DeleteProduct removes a product with its files and bundle links. Objects
// in storage are removed best-effort; a missing object is not an error.
func (a *App) DeleteProduct(ctx context.Context, id string) error {
	files, err := a.store.ListProductFiles(ctx, id)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	if err := a.store.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	for _, f := range files {
		if err := a.objects.Delete(ctx, f.StorageKey); err != nil {
			util.LoggerFromContext(ctx).Warn("delete object failed", "key", f.StorageKey, "err", err)
		}
	}
	return nil
}

// FileInput carries an admin file upload.
type FileInput struct {
	Name           string
	MimeType       string
	Data           []byte
	IsPreview      bool
	AccessOverride domain.AccessType
	SortOrder      int
}

// AttachFile stores the uploaded asset and records it under the product.
// PDF uploads are probed for their page count.
func (a *App) AttachFile(ctx context.Context, productID string, in FileInput) (domain.ProductFile, error) {
	product, ok, err := a.store.GetProduct(ctx, productID)
	if err != nil {
		return domain.ProductFile{}, fmt.Errorf("get product: %w", err)
	}
	if !ok {
		return domain.ProductFile{}, ErrNotFound
	}
	if product.Type == domain.ProductBundle {
		return domain.ProductFile{}, fmt.Errorf("%w: bundles do not own files directly", ErrValidation)
	}
	if len(in.Data) == 0 {
		return domain.ProductFile{}, fmt.Errorf("%w: file data is required", ErrValidation)
	}
	if in.AccessOverride != "" && in.AccessOverride != domain.AccessFree && in.AccessOverride != domain.AccessPaid {
		return domain.ProductFile{}, fmt.Errorf("%w: invalid access override", ErrValidation)
	}

	fileID := util.NewID()
	name := safeFilename(in.Name)
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	pageCount := 0
	if mimeType == "application/pdf" {
		count, err := pdfinfo.PageCount(in.Data)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("pdf page probe failed", "file", name, "err", err)
		} else {
			pageCount = count
		}
	}

	key := path.Join("products", productID, fileID+path.Ext(name))
	if err := a.objects.Put(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), mimeType); err != nil {
		return domain.ProductFile{}, fmt.Errorf("store object: %w", err)
	}

	file := domain.ProductFile{
		ID:             fileID,
		ProductID:      productID,
		Name:           name,
		StorageKey:     key,
		SizeBytes:      int64(len(in.Data)),
		MimeType:       mimeType,
		PageCount:      pageCount,
		IsPreview:      in.IsPreview,
		AccessOverride: in.AccessOverride,
		SortOrder:      in.SortOrder,
		CreatedAt:      a.now().UTC(),
	}
	if err := a.store.SaveProductFile(ctx, file); err != nil {
		return domain.ProductFile{}, fmt.Errorf("save file: %w", err)
	}
	return file, nil
}

// DetachFile removes the file record and its stored object.
func (a *App) DetachFile(ctx context.Context, fileID string) error {
	file, ok, err := a.store.GetProductFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("get file: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if err := a.store.DeleteProductFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if err := a.objects.Delete(ctx, file.StorageKey); err != nil {
		util.LoggerFromContext(ctx).Warn("delete object failed", "key", file.StorageKey, "err", err)
	}
	return nil
}

// AddBundleComponent links a single product into a bundle.
func (a *App) AddBundleComponent(ctx context.Context, bundleID, productID string, sortOrder int) (domain.BundleItem, error) {
	bundle, ok, err := a.store.GetProduct(ctx, bundleID)
	if err != nil {
		return domain.BundleItem{}, fmt.Errorf("get bundle: %w", err)
	}
	if !ok || bundle.Type != domain.ProductBundle {
		return domain.BundleItem{}, ErrNotFound
	}
	component, ok, err := a.store.GetProduct(ctx, productID)
	if err != nil {
		return domain.BundleItem{}, fmt.Errorf("get component: %w", err)
	}
	if !ok {
		return domain.BundleItem{}, ErrNotFound
	}
	if component.Type != domain.ProductSingle {
		return domain.BundleItem{}, ErrNotSingleComponent
	}
	item := domain.BundleItem{
		ID:        util.NewID(),
		BundleID:  bundleID,
		ProductID: productID,
		SortOrder: sortOrder,
		CreatedAt: a.now().UTC(),
	}
	// Re-adding an existing component just moves it; no duplicate rows.
	existing, err := a.store.ListBundleItems(ctx, bundleID)
	if err != nil {
		return domain.BundleItem{}, fmt.Errorf("list bundle items: %w", err)
	}
	for _, bi := range existing {
		if bi.ProductID == productID {
			item.ID = bi.ID
			item.CreatedAt = bi.CreatedAt
			break
		}
	}
	if err := a.store.SaveBundleItem(ctx, item); err != nil {
		return domain.BundleItem{}, fmt.Errorf("save bundle item: %w", err)
	}
	return item, nil
}

// RemoveBundleComponent unlinks a component from its bundle.
func (a *App) RemoveBundleComponent(ctx context.Context, itemID string) error {
	return a.store.DeleteBundleItem(ctx, itemID)
}

func validateProductInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	switch in.Type {
	case domain.ProductSingle, domain.ProductBundle:
	default:
		return fmt.Errorf("%w: invalid product type", ErrValidation)
	}
	switch in.AccessType {
	case domain.AccessFree, domain.AccessPaid, domain.AccessMixed:
	default:
		return fmt.Errorf("%w: invalid access type", ErrValidation)
	}
	if in.PriceCents < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	return nil
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(raw string) string {
	slug := strings.ToLower(strings.TrimSpace(raw))
	slug = slugCleaner.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

func slugOrDerive(slug, name string) string {
	if s := slugify(slug); s != "" {
		return s
	}
	return slugify(name)
}

func normalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "EUR"
	}
	return currency
}

func safeFilename(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return "asset.pdf"
	}
	return name
}
