package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type ProductType string

const (
	ProductSingle ProductType = "single"
	ProductBundle ProductType = "bundle"
)

// AccessType controls who may view a product's files.
// Mixed products carry per-file overrides.
type AccessType string

const (
	AccessFree  AccessType = "free"
	AccessPaid  AccessType = "paid"
	AccessMixed AccessType = "mixed"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderFailed   OrderStatus = "failed"
	OrderRefunded OrderStatus = "refunded"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	SortOrder   int       `json:"sortOrder"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Product struct {
	ID          string      `json:"id"`
	CategoryID  string      `json:"categoryId,omitempty"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	Description string      `json:"description,omitempty"`
	Type        ProductType `json:"type"`
	AccessType  AccessType  `json:"accessType"`
	PriceCents  int64       `json:"priceCents"`
	Currency    string      `json:"currency"`
	Tags        []string    `json:"tags,omitempty"`
	Published   bool        `json:"published"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// ProductFile is a downloadable asset owned by a product. StorageKey is
// never exposed to clients; downloads go through the entitlement endpoint.
type ProductFile struct {
	ID             string     `json:"id"`
	ProductID      string     `json:"productId"`
	Name           string     `json:"name"`
	StorageKey     string     `json:"-"`
	SizeBytes      int64      `json:"sizeBytes"`
	MimeType       string     `json:"mimeType"`
	PageCount      int        `json:"pageCount,omitempty"`
	IsPreview      bool       `json:"isPreview"`
	AccessOverride AccessType `json:"accessOverride,omitempty"`
	SortOrder      int        `json:"sortOrder"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// EffectiveAccess resolves the file-level override against the owning
// product's access type.
func (f ProductFile) EffectiveAccess(p Product) AccessType {
	if f.AccessOverride != "" {
		return f.AccessOverride
	}
	return p.AccessType
}

// BundleItem links a bundle product to one of its single-product components.
type BundleItem struct {
	ID        string    `json:"id"`
	BundleID  string    `json:"bundleId"`
	ProductID string    `json:"productId"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
}

type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	Status     OrderStatus `json:"status"`
	TotalCents int64       `json:"totalCents"`
	Currency   string      `json:"currency"`
	Email      string      `json:"email"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"orderId"`
	ProductID      string `json:"productId"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

// DownloadLog is an append-only record of a served download. Entries are
// never mutated; per-file counts are derived from them.
type DownloadLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	FileID    string    `json:"fileId"`
	ProductID string    `json:"productId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Setting is a single admin-editable configuration value.
type Setting struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}
