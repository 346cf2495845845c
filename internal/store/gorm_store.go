package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"littlefidan/internal/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&CategoryModel{},
		&ProductModel{},
		&ProductFileModel{},
		&BundleItemModel{},
		&OrderModel{},
		&OrderItemModel{},
		&DownloadLogModel{},
		&SettingModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// unavailable marks backend failures as retryable so callers never confuse
// connectivity problems with entitlement denials.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "role", "status", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return unavailable("save user", err)
	}
	return nil
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, unavailable("check email", err)
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, unavailable("get user by email", err)
	}
	u, err := userFromModel(model)
	if err != nil {
		return domain.User{}, false, err
	}
	return u, true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, unavailable("get user", err)
	}
	u, err := userFromModel(model)
	if err != nil {
		return domain.User{}, false, err
	}
	return u, true, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, unavailable("count users", err)
	}
	return int(count), nil
}

// SaveCategory stores or updates a category.
func (s *GormStore) SaveCategory(ctx context.Context, c domain.Category) error {
	model := categoryToModel(c)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "slug", "description", "sort_order"}),
	}).Create(&model).Error
	if err != nil {
		return unavailable("save category", err)
	}
	return nil
}

// GetCategory retrieves a category by ID.
func (s *GormStore) GetCategory(ctx context.Context, id string) (domain.Category, bool, error) {
	var model CategoryModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Category{}, false, nil
		}
		return domain.Category{}, false, unavailable("get category", err)
	}
	c, err := categoryFromModel(model)
	if err != nil {
		return domain.Category{}, false, err
	}
	return c, true, nil
}

// ListCategories returns all categories ordered for display.
func (s *GormStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var models []CategoryModel
	if err := s.db.WithContext(ctx).Order("sort_order ASC, name ASC").Find(&models).Error; err != nil {
		return nil, unavailable("list categories", err)
	}
	res := make([]domain.Category, 0, len(models))
	for _, m := range models {
		c, err := categoryFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// DeleteCategory removes a category.
func (s *GormStore) DeleteCategory(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&CategoryModel{}, "id = ?", id).Error; err != nil {
		return unavailable("delete category", err)
	}
	return nil
}

// SaveProduct stores or updates a product.
func (s *GormStore) SaveProduct(ctx context.Context, p domain.Product) error {
	model, err := productToModel(p)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"category_id", "name", "slug", "description", "type", "access_type", "price_cents", "currency", "tags", "published", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return unavailable("save product", err)
	}
	return nil
}

// GetProduct retrieves a product by ID.
func (s *GormStore) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	var model ProductModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, unavailable("get product", err)
	}
	p, err := productFromModel(model)
	if err != nil {
		return domain.Product{}, false, err
	}
	return p, true, nil
}

// GetProductBySlug retrieves a product by its URL slug.
func (s *GormStore) GetProductBySlug(ctx context.Context, slug string) (domain.Product, bool, error) {
	var model ProductModel
	if err := s.db.WithContext(ctx).First(&model, "slug = ?", slug).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, unavailable("get product by slug", err)
	}
	p, err := productFromModel(model)
	if err != nil {
		return domain.Product{}, false, err
	}
	return p, true, nil
}

// ListProducts returns products matching the filter, newest first.
func (s *GormStore) ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error) {
	tx := s.db.WithContext(ctx).Model(&ProductModel{}).Order("created_at DESC")
	if filter.CategoryID != "" {
		tx = tx.Where("category_id = ?", filter.CategoryID)
	}
	if filter.Type != "" {
		tx = tx.Where("type = ?", string(filter.Type))
	}
	if filter.PublishedOnly {
		tx = tx.Where("published = ?", true)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		tx = tx.Where("name ILIKE ? OR description ILIKE ?", like, like)
	}
	var models []ProductModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, unavailable("list products", err)
	}
	res := make([]domain.Product, 0, len(models))
	for _, m := range models {
		p, err := productFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// DeleteProduct removes a product with its files and bundle links.
func (s *GormStore) DeleteProduct(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ProductFileModel{}, "product_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&BundleItemModel{}, "bundle_id = ? OR product_id = ?", id, id).Error; err != nil {
			return err
		}
		return tx.Delete(&ProductModel{}, "id = ?", id).Error
	})
	if err != nil {
		return unavailable("delete product", err)
	}
	return nil
}

// SaveProductFile stores or updates a file record.
func (s *GormStore) SaveProductFile(ctx context.Context, f domain.ProductFile) error {
	model := fileToModel(f)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "size_bytes", "mime_type", "page_count", "is_preview", "access_override", "sort_order"}),
	}).Create(&model).Error
	if err != nil {
		return unavailable("save product file", err)
	}
	return nil
}

// GetProductFile retrieves a file by ID.
func (s *GormStore) GetProductFile(ctx context.Context, id string) (domain.ProductFile, bool, error) {
	var model ProductFileModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ProductFile{}, false, nil
		}
		return domain.ProductFile{}, false, unavailable("get product file", err)
	}
	f, err := fileFromModel(model)
	if err != nil {
		return domain.ProductFile{}, false, err
	}
	return f, true, nil
}

// ListProductFiles returns a product's files in display order.
func (s *GormStore) ListProductFiles(ctx context.Context, productID string) ([]domain.ProductFile, error) {
	var models []ProductFileModel
	if err := s.db.WithContext(ctx).Where("product_id = ?", productID).Order("sort_order ASC, created_at ASC").Find(&models).Error; err != nil {
		return nil, unavailable("list product files", err)
	}
	res := make([]domain.ProductFile, 0, len(models))
	for _, m := range models {
		f, err := fileFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, nil
}

// DeleteProductFile removes a file record.
func (s *GormStore) DeleteProductFile(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&ProductFileModel{}, "id = ?", id).Error; err != nil {
		return unavailable("delete product file", err)
	}
	return nil
}

// SaveBundleItem links a component product into a bundle.
func (s *GormStore) SaveBundleItem(ctx context.Context, bi domain.BundleItem) error {
	model := bundleItemToModel(bi)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sort_order"}),
	}).Create(&model).Error
	if err != nil {
		return unavailable("save bundle item", err)
	}
	return nil
}

// ListBundleItems returns a bundle's components in display order.
func (s *GormStore) ListBundleItems(ctx context.Context, bundleID string) ([]domain.BundleItem, error) {
	var models []BundleItemModel
	if err := s.db.WithContext(ctx).Where("bundle_id = ?", bundleID).Order("sort_order ASC").Find(&models).Error; err != nil {
		return nil, unavailable("list bundle items", err)
	}
	res := make([]domain.BundleItem, 0, len(models))
	for _, m := range models {
		bi, err := bundleItemFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, bi)
	}
	return res, nil
}

// ListBundlesContaining returns IDs of bundles that include the product.
func (s *GormStore) ListBundlesContaining(ctx context.Context, productID string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&BundleItemModel{}).Where("product_id = ?", productID).Pluck("bundle_id", &ids).Error; err != nil {
		return nil, unavailable("list bundles containing", err)
	}
	return ids, nil
}

// DeleteBundleItem removes a bundle link.
func (s *GormStore) DeleteBundleItem(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&BundleItemModel{}, "id = ?", id).Error; err != nil {
		return unavailable("delete bundle item", err)
	}
	return nil
}

// CreateOrder writes the order and its items in one transaction.
func (s *GormStore) CreateOrder(ctx context.Context, o domain.Order, items []domain.OrderItem) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := orderToModel(o)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for _, it := range items {
			itemModel := orderItemToModel(it)
			itemModel.OrderID = o.ID
			if err := tx.Create(&itemModel).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("create order", err)
	}
	return nil
}

// GetOrder retrieves an order by ID.
func (s *GormStore) GetOrder(ctx context.Context, id string) (domain.Order, bool, error) {
	var model OrderModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, unavailable("get order", err)
	}
	o, err := orderFromModel(model)
	if err != nil {
		return domain.Order{}, false, err
	}
	return o, true, nil
}

// ListOrdersByUser returns the user's orders, newest first.
func (s *GormStore) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	var models []OrderModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, unavailable("list orders by user", err)
	}
	return ordersFromModels(models)
}

// ListOrdersByStatus returns orders filtered by status with paging.
// An empty status returns all orders.
func (s *GormStore) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]domain.Order, error) {
	tx := s.db.WithContext(ctx).Model(&OrderModel{}).Order("created_at DESC")
	if status != "" {
		tx = tx.Where("status = ?", string(status))
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	var models []OrderModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, unavailable("list orders by status", err)
	}
	return ordersFromModels(models)
}

func ordersFromModels(models []OrderModel) ([]domain.Order, error) {
	res := make([]domain.Order, 0, len(models))
	for _, m := range models {
		o, err := orderFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, nil
}

// ListOrderItems returns an order's line items.
func (s *GormStore) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	var models []OrderItemModel
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&models).Error; err != nil {
		return nil, unavailable("list order items", err)
	}
	res := make([]domain.OrderItem, 0, len(models))
	for _, m := range models {
		it, err := orderItemFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, nil
}

// SetOrderStatus updates an order's payment status.
func (s *GormStore) SetOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	err := s.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return unavailable("set order status", err)
	}
	return nil
}

// EarliestPaidOrder returns the oldest paid order of the user containing any
// of the given products. The earliest purchase governs the access window
// even when the product was bought again later.
func (s *GormStore) EarliestPaidOrder(ctx context.Context, userID string, productIDs []string) (domain.Order, bool, error) {
	if len(productIDs) == 0 {
		return domain.Order{}, false, nil
	}
	var model OrderModel
	err := s.db.WithContext(ctx).Model(&OrderModel{}).
		Joins("JOIN order_item_models ON order_item_models.order_id = order_models.id").
		Where("order_models.user_id = ? AND order_models.status = ? AND order_item_models.product_id IN ?", userID, string(domain.OrderPaid), productIDs).
		Order("order_models.created_at ASC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, unavailable("earliest paid order", err)
	}
	o, err := orderFromModel(model)
	if err != nil {
		return domain.Order{}, false, err
	}
	return o, true, nil
}

// CountDownloads returns the number of logged downloads for (user, file).
func (s *GormStore) CountDownloads(ctx context.Context, userID, fileID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&DownloadLogModel{}).Where("user_id = ? AND file_id = ?", userID, fileID).Count(&count).Error; err != nil {
		return 0, unavailable("count downloads", err)
	}
	return int(count), nil
}

// CountDownloadsByProduct returns total logged downloads for a product.
func (s *GormStore) CountDownloadsByProduct(ctx context.Context, productID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&DownloadLogModel{}).Where("product_id = ?", productID).Count(&count).Error; err != nil {
		return 0, unavailable("count downloads by product", err)
	}
	return int(count), nil
}

// AppendDownload records a served download unconditionally.
func (s *GormStore) AppendDownload(ctx context.Context, log domain.DownloadLog) error {
	model := downloadToModel(log)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return unavailable("append download", err)
	}
	return nil
}

// AppendDownloadBelowLimit appends the entry only while the (user, file)
// count is below limit. The count and insert run under a per-(user, file)
// advisory transaction lock so two concurrent grants cannot both slip past
// the cap.
func (s *GormStore) AppendDownloadBelowLimit(ctx context.Context, log domain.DownloadLog, limit int) (bool, error) {
	allowed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockKey := log.UserID + "/" + log.FileID
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", lockKey).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&DownloadLogModel{}).Where("user_id = ? AND file_id = ?", log.UserID, log.FileID).Count(&count).Error; err != nil {
			return err
		}
		if int(count) >= limit {
			return nil
		}
		model := downloadToModel(log)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		allowed = true
		return nil
	})
	if err != nil {
		return false, unavailable("append download below limit", err)
	}
	return allowed, nil
}

// GetSetting retrieves a setting by key.
func (s *GormStore) GetSetting(ctx context.Context, key string) (domain.Setting, bool, error) {
	var model SettingModel
	if err := s.db.WithContext(ctx).First(&model, "key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Setting{}, false, nil
		}
		return domain.Setting{}, false, unavailable("get setting", err)
	}
	v, err := settingFromModel(model)
	if err != nil {
		return domain.Setting{}, false, err
	}
	return v, true, nil
}

// PutSetting stores or replaces a setting value.
func (s *GormStore) PutSetting(ctx context.Context, v domain.Setting) error {
	model := settingToModel(v)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return unavailable("put setting", err)
	}
	return nil
}

// ListSettings returns all settings.
func (s *GormStore) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	var models []SettingModel
	if err := s.db.WithContext(ctx).Order("key ASC").Find(&models).Error; err != nil {
		return nil, unavailable("list settings", err)
	}
	res := make([]domain.Setting, 0, len(models))
	for _, m := range models {
		v, err := settingFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}
