package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"littlefidan/internal/domain"
)

// MemoryStore keeps all records in-process. Used by tests as a drop-in
// replacement for the Postgres store.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	email       map[string]string // email -> user ID
	categories  map[string]domain.Category
	products    map[string]domain.Product
	files       map[string]domain.ProductFile
	bundleItems map[string]domain.BundleItem
	orders      map[string]domain.Order
	orderItems  map[string][]domain.OrderItem // order ID -> items
	downloads   []domain.DownloadLog
	settings    map[string]domain.Setting
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		email:       make(map[string]string),
		categories:  make(map[string]domain.Category),
		products:    make(map[string]domain.Product),
		files:       make(map[string]domain.ProductFile),
		bundleItems: make(map[string]domain.BundleItem),
		orders:      make(map[string]domain.Order),
		orderItems:  make(map[string][]domain.OrderItem),
		settings:    make(map[string]domain.Setting),
	}
}

func (m *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) HasUserEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) UserCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *MemoryStore) SaveCategory(_ context.Context, c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCategory(_ context.Context, id string) (domain.Category, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	return c, ok, nil
}

func (m *MemoryStore) ListCategories(_ context.Context) ([]domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].SortOrder != res[j].SortOrder {
			return res[i].SortOrder < res[j].SortOrder
		}
		return res[i].Name < res[j].Name
	})
	return res, nil
}

func (m *MemoryStore) DeleteCategory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.categories, id)
	return nil
}

func (m *MemoryStore) SaveProduct(_ context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *MemoryStore) GetProduct(_ context.Context, id string) (domain.Product, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	return p, ok, nil
}

func (m *MemoryStore) GetProductBySlug(_ context.Context, slug string) (domain.Product, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.products {
		if p.Slug == slug {
			return p, true, nil
		}
	}
	return domain.Product{}, false, nil
}

func (m *MemoryStore) ListProducts(_ context.Context, filter ProductFilter) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if filter.Type != "" && p.Type != filter.Type {
			continue
		}
		if filter.PublishedOnly && !p.Published {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(strings.ToLower(p.Description), needle) {
				continue
			}
		}
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
	for fid, f := range m.files {
		if f.ProductID == id {
			delete(m.files, fid)
		}
	}
	for bid, bi := range m.bundleItems {
		if bi.BundleID == id || bi.ProductID == id {
			delete(m.bundleItems, bid)
		}
	}
	return nil
}

func (m *MemoryStore) SaveProductFile(_ context.Context, f domain.ProductFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[f.ID] = f
	return nil
}

func (m *MemoryStore) GetProductFile(_ context.Context, id string) (domain.ProductFile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	return f, ok, nil
}

func (m *MemoryStore) ListProductFiles(_ context.Context, productID string) ([]domain.ProductFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ProductFile, 0)
	for _, f := range m.files {
		if f.ProductID == productID {
			res = append(res, f)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].SortOrder != res[j].SortOrder {
			return res[i].SortOrder < res[j].SortOrder
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (m *MemoryStore) DeleteProductFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	return nil
}

func (m *MemoryStore) SaveBundleItem(_ context.Context, bi domain.BundleItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundleItems[bi.ID] = bi
	return nil
}

func (m *MemoryStore) ListBundleItems(_ context.Context, bundleID string) ([]domain.BundleItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.BundleItem, 0)
	for _, bi := range m.bundleItems {
		if bi.BundleID == bundleID {
			res = append(res, bi)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SortOrder < res[j].SortOrder })
	return res, nil
}

func (m *MemoryStore) ListBundlesContaining(_ context.Context, productID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, bi := range m.bundleItems {
		if bi.ProductID == productID {
			ids = append(ids, bi.BundleID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) DeleteBundleItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bundleItems, id)
	return nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, o domain.Order, items []domain.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	stored := make([]domain.OrderItem, len(items))
	copy(stored, items)
	for i := range stored {
		stored[i].OrderID = o.ID
	}
	m.orderItems[o.ID] = stored
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (domain.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok, nil
}

func (m *MemoryStore) ListOrdersByUser(_ context.Context, userID string) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Order, 0)
	for _, o := range m.orders {
		if o.UserID == userID {
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) ListOrdersByStatus(_ context.Context, status domain.OrderStatus, limit, offset int) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Order, 0)
	for _, o := range m.orders {
		if status != "" && o.Status != status {
			continue
		}
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if offset > 0 {
		if offset >= len(res) {
			return nil, nil
		}
		res = res[offset:]
	}
	if limit > 0 && limit < len(res) {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) ListOrderItems(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.orderItems[orderID]
	res := make([]domain.OrderItem, len(items))
	copy(res, items)
	return res, nil
}

func (m *MemoryStore) SetOrderStatus(_ context.Context, id string, status domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	m.orders[id] = o
	return nil
}

func (m *MemoryStore) EarliestPaidOrder(_ context.Context, userID string, productIDs []string) (domain.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = struct{}{}
	}
	var best domain.Order
	found := false
	for _, o := range m.orders {
		if o.UserID != userID || o.Status != domain.OrderPaid {
			continue
		}
		matches := false
		for _, it := range m.orderItems[o.ID] {
			if _, ok := wanted[it.ProductID]; ok {
				matches = true
				break
			}
		}
		if !matches {
			continue
		}
		if !found || o.CreatedAt.Before(best.CreatedAt) {
			best = o
			found = true
		}
	}
	return best, found, nil
}

func (m *MemoryStore) CountDownloads(_ context.Context, userID, fileID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countDownloadsLocked(userID, fileID), nil
}

func (m *MemoryStore) countDownloadsLocked(userID, fileID string) int {
	count := 0
	for _, d := range m.downloads {
		if d.UserID == userID && d.FileID == fileID {
			count++
		}
	}
	return count
}

func (m *MemoryStore) CountDownloadsByProduct(_ context.Context, productID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, d := range m.downloads {
		if d.ProductID == productID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) AppendDownload(_ context.Context, log domain.DownloadLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads = append(m.downloads, log)
	return nil
}

func (m *MemoryStore) AppendDownloadBelowLimit(_ context.Context, log domain.DownloadLog, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countDownloadsLocked(log.UserID, log.FileID) >= limit {
		return false, nil
	}
	m.downloads = append(m.downloads, log)
	return true, nil
}

func (m *MemoryStore) GetSetting(_ context.Context, key string) (domain.Setting, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *MemoryStore) PutSetting(_ context.Context, v domain.Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[v.Key] = v
	return nil
}

func (m *MemoryStore) ListSettings(_ context.Context) ([]domain.Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Setting, 0, len(m.settings))
	for _, v := range m.settings {
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Key < res[j].Key })
	return res, nil
}
