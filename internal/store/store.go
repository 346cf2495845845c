package store

import (
	"context"
	"errors"

	"littlefidan/internal/domain"
)

// ErrUnavailable wraps backend connectivity failures so callers can treat
// them as retryable rather than as entitlement denials.
var ErrUnavailable = errors.New("store unavailable")

// ProductFilter narrows ListProducts results. Zero values mean "no filter".
type ProductFilter struct {
	CategoryID    string
	Type          domain.ProductType
	Search        string
	PublishedOnly bool
}

// Store defines persistence operations for the storefront.
type Store interface {
	// users
	SaveUser(ctx context.Context, u domain.User) error
	HasUserEmail(ctx context.Context, email string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	UserCount(ctx context.Context) (int, error)

	// categories
	SaveCategory(ctx context.Context, c domain.Category) error
	GetCategory(ctx context.Context, id string) (domain.Category, bool, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	// products
	SaveProduct(ctx context.Context, p domain.Product) error
	GetProduct(ctx context.Context, id string) (domain.Product, bool, error)
	GetProductBySlug(ctx context.Context, slug string) (domain.Product, bool, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// product files
	SaveProductFile(ctx context.Context, f domain.ProductFile) error
	GetProductFile(ctx context.Context, id string) (domain.ProductFile, bool, error)
	ListProductFiles(ctx context.Context, productID string) ([]domain.ProductFile, error)
	DeleteProductFile(ctx context.Context, id string) error

	// bundle composition
	SaveBundleItem(ctx context.Context, bi domain.BundleItem) error
	ListBundleItems(ctx context.Context, bundleID string) ([]domain.BundleItem, error)
	ListBundlesContaining(ctx context.Context, productID string) ([]string, error)
	DeleteBundleItem(ctx context.Context, id string) error

	// orders
	CreateOrder(ctx context.Context, o domain.Order, items []domain.OrderItem) error
	GetOrder(ctx context.Context, id string) (domain.Order, bool, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]domain.Order, error)
	ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	SetOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error
	// EarliestPaidOrder returns the oldest paid order of the user containing
	// any of the given product IDs.
	EarliestPaidOrder(ctx context.Context, userID string, productIDs []string) (domain.Order, bool, error)

	// download log
	CountDownloads(ctx context.Context, userID, fileID string) (int, error)
	CountDownloadsByProduct(ctx context.Context, productID string) (int, error)
	AppendDownload(ctx context.Context, log domain.DownloadLog) error
	// AppendDownloadBelowLimit appends the log entry only while the
	// (user, file) count is below limit, atomically. Returns false when the
	// limit was already reached.
	AppendDownloadBelowLimit(ctx context.Context, log domain.DownloadLog, limit int) (bool, error)

	// settings
	GetSetting(ctx context.Context, key string) (domain.Setting, bool, error)
	PutSetting(ctx context.Context, s domain.Setting) error
	ListSettings(ctx context.Context) ([]domain.Setting, error)
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
