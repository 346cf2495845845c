package app

import (
	"context"
	"encoding/json"
	"fmt"

	"littlefidan/internal/domain"
)

// SettingBundleDiscount is the settings key holding the storewide bundle
// discount percentage as a JSON number between 0 and 100.
const SettingBundleDiscount = "bundle_discount_percent"

// EffectivePrice resolves the charge for one unit of a product. Singles
// carry their own price. Bundles with an explicit price use it; bundles
// priced at zero are computed from their components minus the storewide
// discount.
func (a *App) EffectivePrice(ctx context.Context, p domain.Product) (int64, error) {
	if p.Type != domain.ProductBundle || p.PriceCents > 0 {
		return p.PriceCents, nil
	}
	items, err := a.store.ListBundleItems(ctx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("list bundle items: %w", err)
	}
	var sum int64
	for _, item := range items {
		component, ok, err := a.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			return 0, fmt.Errorf("get component: %w", err)
		}
		if !ok {
			continue
		}
		sum += component.PriceCents
	}
	discount, err := a.bundleDiscountPercent(ctx)
	if err != nil {
		return 0, err
	}
	return sum - sum*discount/100, nil
}

func (a *App) bundleDiscountPercent(ctx context.Context) (int64, error) {
	setting, ok, err := a.store.GetSetting(ctx, SettingBundleDiscount)
	if err != nil {
		return 0, fmt.Errorf("get discount setting: %w", err)
	}
	if !ok {
		return 0, nil
	}
	var percent int64
	if err := json.Unmarshal(setting.Value, &percent); err != nil {
		return 0, nil
	}
	if percent < 0 || percent > 100 {
		return 0, nil
	}
	return percent, nil
}
