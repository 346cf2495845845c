package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"littlefidan/internal/domain"
	"littlefidan/internal/store"
)

// ExportFile is one file row in the catalog export, annotated with whether
// its object is actually present in storage.
type ExportFile struct {
	File     domain.ProductFile `json:"file"`
	ObjectOK bool               `json:"objectOk"`
}

// ExportProduct is one product row in the catalog export.
type ExportProduct struct {
	Product   domain.Product `json:"product"`
	Files     []ExportFile   `json:"files"`
	Downloads int            `json:"downloads"`
}

// ExportCatalog assembles the full admin catalog report. Storage existence
// checks fan out concurrently since each one is a network round trip.
func (a *App) ExportCatalog(ctx context.Context) ([]ExportProduct, error) {
	products, err := a.store.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	report := make([]ExportProduct, len(products))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, product := range products {
		g.Go(func() error {
			files, err := a.store.ListProductFiles(ctx, product.ID)
			if err != nil {
				return fmt.Errorf("list files for %s: %w", product.ID, err)
			}
			entry := ExportProduct{Product: product, Files: make([]ExportFile, len(files))}
			for j, f := range files {
				ok, err := a.objects.Exists(ctx, f.StorageKey)
				if err != nil {
					return fmt.Errorf("stat %s: %w", f.StorageKey, err)
				}
				entry.Files[j] = ExportFile{File: f, ObjectOK: ok}
			}
			entry.Downloads, err = a.store.CountDownloadsByProduct(ctx, product.ID)
			if err != nil {
				return fmt.Errorf("count downloads for %s: %w", product.ID, err)
			}
			report[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}
