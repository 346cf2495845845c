package app

import (
	"context"
	"fmt"

	"littlefidan/internal/domain"
	"littlefidan/internal/mailer"
	"littlefidan/internal/util"
)

// CheckoutItem is one requested cart line. Prices are never taken from the
// client; the server reprices every item.
type CheckoutItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderWithItems is an order together with its lines.
type OrderWithItems struct {
	Order domain.Order       `json:"order"`
	Items []domain.OrderItem `json:"items"`
}

// Checkout prices the cart server-side and creates a pending order. The
// order stays pending until the payment provider reports its outcome.
func (a *App) Checkout(ctx context.Context, user domain.User, items []CheckoutItem) (OrderWithItems, error) {
	if len(items) == 0 {
		return OrderWithItems{}, fmt.Errorf("%w: cart is empty", ErrValidation)
	}

	orderID := util.NewID()
	nowTime := a.now().UTC()
	var (
		orderItems []domain.OrderItem
		total      int64
		currency   string
	)
	seen := map[string]bool{}
	for _, item := range items {
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		if seen[item.ProductID] {
			return OrderWithItems{}, fmt.Errorf("%w: duplicate product in cart", ErrValidation)
		}
		seen[item.ProductID] = true

		product, ok, err := a.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			return OrderWithItems{}, fmt.Errorf("get product: %w", err)
		}
		if !ok || !product.Published {
			return OrderWithItems{}, fmt.Errorf("%w: product %s is not available", ErrValidation, item.ProductID)
		}
		price, err := a.EffectivePrice(ctx, product)
		if err != nil {
			return OrderWithItems{}, err
		}
		if currency == "" {
			currency = product.Currency
		} else if currency != product.Currency {
			return OrderWithItems{}, fmt.Errorf("%w: mixed currencies in one order", ErrValidation)
		}
		total += price * int64(item.Quantity)
		orderItems = append(orderItems, domain.OrderItem{
			ID:             util.NewID(),
			OrderID:        orderID,
			ProductID:      product.ID,
			Quantity:       item.Quantity,
			UnitPriceCents: price,
		})
	}

	order := domain.Order{
		ID:         orderID,
		UserID:     user.ID,
		Status:     domain.OrderPending,
		TotalCents: total,
		Currency:   currency,
		Email:      user.Email,
		CreatedAt:  nowTime,
		UpdatedAt:  nowTime,
	}
	if err := a.store.CreateOrder(ctx, order, orderItems); err != nil {
		return OrderWithItems{}, fmt.Errorf("create order: %w", err)
	}
	return OrderWithItems{Order: order, Items: orderItems}, nil
}

// HandlePaymentEvent applies a provider callback to an order. Only pending
// orders transition; replayed events for settled orders are acknowledged
// without effect.
func (a *App) HandlePaymentEvent(ctx context.Context, orderID string, succeeded bool) (domain.Order, error) {
	order, ok, err := a.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !ok {
		return domain.Order{}, ErrNotFound
	}
	if order.Status != domain.OrderPending {
		return order, nil
	}

	status := domain.OrderFailed
	if succeeded {
		status = domain.OrderPaid
	}
	if err := a.store.SetOrderStatus(ctx, orderID, status); err != nil {
		return domain.Order{}, fmt.Errorf("set order status: %w", err)
	}
	order.Status = status
	order.UpdatedAt = a.now().UTC()

	if succeeded {
		a.sendOrderConfirmation(ctx, order)
	}
	return order, nil
}

// sendOrderConfirmation emails the buyer. Mail failures never fail the
// payment; the order is already paid.
func (a *App) sendOrderConfirmation(ctx context.Context, order domain.Order) {
	if a.mailer == nil {
		return
	}
	items, err := a.store.ListOrderItems(ctx, order.ID)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("load order items for mail failed", "order", order.ID, "err", err)
		return
	}
	data := mailer.OrderConfirmationData{
		OrderID:    order.ID,
		Total:      formatAmount(order.TotalCents, order.Currency),
		LibraryURL: a.libraryURL,
	}
	for _, item := range items {
		name := item.ProductID
		if product, ok, err := a.store.GetProduct(ctx, item.ProductID); err == nil && ok {
			name = product.Name
		}
		data.Lines = append(data.Lines, mailer.OrderLine{
			Name:     name,
			Quantity: item.Quantity,
			Price:    formatAmount(item.UnitPriceCents*int64(item.Quantity), order.Currency),
		})
	}
	if err := a.mailer.SendOrderConfirmation(ctx, order.Email, data); err != nil {
		util.LoggerFromContext(ctx).Warn("order confirmation mail failed", "order", order.ID, "err", err)
	}
}

// ListUserOrders returns the user's orders newest first, with lines.
func (a *App) ListUserOrders(ctx context.Context, userID string) ([]OrderWithItems, error) {
	orders, err := a.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	result := make([]OrderWithItems, 0, len(orders))
	for _, order := range orders {
		items, err := a.store.ListOrderItems(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("list order items: %w", err)
		}
		result = append(result, OrderWithItems{Order: order, Items: items})
	}
	return result, nil
}

// GetUserOrder returns one order if it belongs to the user.
func (a *App) GetUserOrder(ctx context.Context, userID, orderID string) (OrderWithItems, error) {
	order, ok, err := a.store.GetOrder(ctx, orderID)
	if err != nil {
		return OrderWithItems{}, fmt.Errorf("get order: %w", err)
	}
	if !ok || order.UserID != userID {
		return OrderWithItems{}, ErrNotFound
	}
	items, err := a.store.ListOrderItems(ctx, orderID)
	if err != nil {
		return OrderWithItems{}, fmt.Errorf("list order items: %w", err)
	}
	return OrderWithItems{Order: order, Items: items}, nil
}

// ListOrdersByStatus is the admin order list with paging.
func (a *App) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return a.store.ListOrdersByStatus(ctx, status, limit, offset)
}

// RefundOrder marks a paid order refunded, revoking its entitlements.
func (a *App) RefundOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, ok, err := a.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !ok {
		return domain.Order{}, ErrNotFound
	}
	if order.Status != domain.OrderPaid {
		return domain.Order{}, fmt.Errorf("%w: only paid orders can be refunded", ErrValidation)
	}
	if err := a.store.SetOrderStatus(ctx, orderID, domain.OrderRefunded); err != nil {
		return domain.Order{}, fmt.Errorf("set order status: %w", err)
	}
	order.Status = domain.OrderRefunded
	order.UpdatedAt = a.now().UTC()
	return order, nil
}

func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
