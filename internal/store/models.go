package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"littlefidan/internal/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	Status       string `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type CategoryModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Slug        string `gorm:"uniqueIndex;not null"`
	Description string
	SortOrder   int
	CreatedAt   time.Time `gorm:"not null"`
}

type ProductModel struct {
	ID          string `gorm:"primaryKey"`
	CategoryID  string `gorm:"index"`
	Name        string `gorm:"not null"`
	Slug        string `gorm:"uniqueIndex;not null"`
	Description string `gorm:"type:text"`
	Type        string `gorm:"not null"`
	AccessType  string `gorm:"not null"`
	PriceCents  int64  `gorm:"not null"`
	Currency    string `gorm:"not null"`
	Tags        datatypes.JSON `gorm:"type:jsonb"`
	Published   bool           `gorm:"not null;index"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

type ProductFileModel struct {
	ID             string `gorm:"primaryKey"`
	ProductID      string `gorm:"not null;index"`
	Name           string `gorm:"not null"`
	StorageKey     string `gorm:"not null"`
	SizeBytes      int64  `gorm:"not null"`
	MimeType       string `gorm:"not null"`
	PageCount      int
	IsPreview      bool
	AccessOverride string
	SortOrder      int
	CreatedAt      time.Time `gorm:"not null"`
}

type BundleItemModel struct {
	ID        string `gorm:"primaryKey"`
	BundleID  string `gorm:"not null;index"`
	ProductID string `gorm:"not null;index"`
	SortOrder int
	CreatedAt time.Time `gorm:"not null"`
}

type OrderModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"not null;index"`
	Status     string `gorm:"not null;index"`
	TotalCents int64  `gorm:"not null"`
	Currency   string `gorm:"not null"`
	Email      string `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time `gorm:"not null"`
}

type OrderItemModel struct {
	ID             string `gorm:"primaryKey"`
	OrderID        string `gorm:"not null;index"`
	ProductID      string `gorm:"not null;index"`
	Quantity       int    `gorm:"not null"`
	UnitPriceCents int64  `gorm:"not null"`
}

type DownloadLogModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index:idx_download_user_file"`
	FileID    string    `gorm:"not null;index:idx_download_user_file"`
	ProductID string    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

type SettingModel struct {
	Key       string         `gorm:"primaryKey"`
	Value     datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt time.Time      `gorm:"not null"`
}

// Mapping between models and domain records. Required fields are validated
// here so malformed rows are rejected at the store boundary instead of
// leaking partial records into business logic.

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) (domain.User, error) {
	if m.ID == "" || m.Email == "" {
		return domain.User{}, errors.New("user row missing id or email")
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		Status:       domain.UserStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

func categoryToModel(c domain.Category) CategoryModel {
	return CategoryModel{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		SortOrder:   c.SortOrder,
		CreatedAt:   c.CreatedAt,
	}
}

func categoryFromModel(m CategoryModel) (domain.Category, error) {
	if m.ID == "" || m.Slug == "" {
		return domain.Category{}, errors.New("category row missing id or slug")
	}
	return domain.Category{
		ID:          m.ID,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		SortOrder:   m.SortOrder,
		CreatedAt:   m.CreatedAt,
	}, nil
}

func productToModel(p domain.Product) (ProductModel, error) {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return ProductModel{}, fmt.Errorf("encode tags: %w", err)
	}
	return ProductModel{
		ID:          p.ID,
		CategoryID:  p.CategoryID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Type:        string(p.Type),
		AccessType:  string(p.AccessType),
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		Tags:        datatypes.JSON(tags),
		Published:   p.Published,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func productFromModel(m ProductModel) (domain.Product, error) {
	if m.ID == "" || m.Slug == "" {
		return domain.Product{}, errors.New("product row missing id or slug")
	}
	switch domain.ProductType(m.Type) {
	case domain.ProductSingle, domain.ProductBundle:
	default:
		return domain.Product{}, fmt.Errorf("product %s has invalid type %q", m.ID, m.Type)
	}
	switch domain.AccessType(m.AccessType) {
	case domain.AccessFree, domain.AccessPaid, domain.AccessMixed:
	default:
		return domain.Product{}, fmt.Errorf("product %s has invalid access type %q", m.ID, m.AccessType)
	}
	var tags []string
	if len(m.Tags) > 0 {
		if err := json.Unmarshal(m.Tags, &tags); err != nil {
			return domain.Product{}, fmt.Errorf("decode tags for product %s: %w", m.ID, err)
		}
	}
	return domain.Product{
		ID:          m.ID,
		CategoryID:  m.CategoryID,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		Type:        domain.ProductType(m.Type),
		AccessType:  domain.AccessType(m.AccessType),
		PriceCents:  m.PriceCents,
		Currency:    m.Currency,
		Tags:        tags,
		Published:   m.Published,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func fileToModel(f domain.ProductFile) ProductFileModel {
	return ProductFileModel{
		ID:             f.ID,
		ProductID:      f.ProductID,
		Name:           f.Name,
		StorageKey:     f.StorageKey,
		SizeBytes:      f.SizeBytes,
		MimeType:       f.MimeType,
		PageCount:      f.PageCount,
		IsPreview:      f.IsPreview,
		AccessOverride: string(f.AccessOverride),
		SortOrder:      f.SortOrder,
		CreatedAt:      f.CreatedAt,
	}
}

func fileFromModel(m ProductFileModel) (domain.ProductFile, error) {
	if m.ID == "" || m.ProductID == "" || m.StorageKey == "" {
		return domain.ProductFile{}, errors.New("product file row missing id, product or storage key")
	}
	if m.AccessOverride != "" {
		switch domain.AccessType(m.AccessOverride) {
		case domain.AccessFree, domain.AccessPaid:
		default:
			return domain.ProductFile{}, fmt.Errorf("file %s has invalid access override %q", m.ID, m.AccessOverride)
		}
	}
	return domain.ProductFile{
		ID:             m.ID,
		ProductID:      m.ProductID,
		Name:           m.Name,
		StorageKey:     m.StorageKey,
		SizeBytes:      m.SizeBytes,
		MimeType:       m.MimeType,
		PageCount:      m.PageCount,
		IsPreview:      m.IsPreview,
		AccessOverride: domain.AccessType(m.AccessOverride),
		SortOrder:      m.SortOrder,
		CreatedAt:      m.CreatedAt,
	}, nil
}

func bundleItemToModel(bi domain.BundleItem) BundleItemModel {
	return BundleItemModel{
		ID:        bi.ID,
		BundleID:  bi.BundleID,
		ProductID: bi.ProductID,
		SortOrder: bi.SortOrder,
		CreatedAt: bi.CreatedAt,
	}
}

func bundleItemFromModel(m BundleItemModel) (domain.BundleItem, error) {
	if m.ID == "" || m.BundleID == "" || m.ProductID == "" {
		return domain.BundleItem{}, errors.New("bundle item row missing id, bundle or product")
	}
	return domain.BundleItem{
		ID:        m.ID,
		BundleID:  m.BundleID,
		ProductID: m.ProductID,
		SortOrder: m.SortOrder,
		CreatedAt: m.CreatedAt,
	}, nil
}

func orderToModel(o domain.Order) OrderModel {
	return OrderModel{
		ID:         o.ID,
		UserID:     o.UserID,
		Status:     string(o.Status),
		TotalCents: o.TotalCents,
		Currency:   o.Currency,
		Email:      o.Email,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func orderFromModel(m OrderModel) (domain.Order, error) {
	if m.ID == "" || m.UserID == "" {
		return domain.Order{}, errors.New("order row missing id or user")
	}
	switch domain.OrderStatus(m.Status) {
	case domain.OrderPending, domain.OrderPaid, domain.OrderFailed, domain.OrderRefunded:
	default:
		return domain.Order{}, fmt.Errorf("order %s has invalid status %q", m.ID, m.Status)
	}
	return domain.Order{
		ID:         m.ID,
		UserID:     m.UserID,
		Status:     domain.OrderStatus(m.Status),
		TotalCents: m.TotalCents,
		Currency:   m.Currency,
		Email:      m.Email,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}

func orderItemToModel(it domain.OrderItem) OrderItemModel {
	return OrderItemModel{
		ID:             it.ID,
		OrderID:        it.OrderID,
		ProductID:      it.ProductID,
		Quantity:       it.Quantity,
		UnitPriceCents: it.UnitPriceCents,
	}
}

func orderItemFromModel(m OrderItemModel) (domain.OrderItem, error) {
	if m.ID == "" || m.OrderID == "" || m.ProductID == "" {
		return domain.OrderItem{}, errors.New("order item row missing id, order or product")
	}
	return domain.OrderItem{
		ID:             m.ID,
		OrderID:        m.OrderID,
		ProductID:      m.ProductID,
		Quantity:       m.Quantity,
		UnitPriceCents: m.UnitPriceCents,
	}, nil
}

func downloadToModel(d domain.DownloadLog) DownloadLogModel {
	return DownloadLogModel{
		ID:        d.ID,
		UserID:    d.UserID,
		FileID:    d.FileID,
		ProductID: d.ProductID,
		CreatedAt: d.CreatedAt,
	}
}

func settingToModel(s domain.Setting) SettingModel {
	return SettingModel{
		Key:       s.Key,
		Value:     datatypes.JSON(s.Value),
		UpdatedAt: s.UpdatedAt,
	}
}

func settingFromModel(m SettingModel) (domain.Setting, error) {
	if m.Key == "" {
		return domain.Setting{}, errors.New("setting row missing key")
	}
	return domain.Setting{
		Key:       m.Key,
		Value:     []byte(m.Value),
		UpdatedAt: m.UpdatedAt,
	}, nil
}
