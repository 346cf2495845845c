// Package entitlement decides whether a user may download a product file
// right now. The decision is recomputed from purchase records, elapsed time
// and the download log on every request; nothing is cached or persisted, so
// a payment-status flip or a new log entry takes effect on the next check.
package entitlement

import (
	"context"
	"fmt"
	"time"

	"littlefidan/internal/domain"
)

const (
	// AccessWindow is how long after the earliest qualifying purchase a
	// file stays downloadable.
	AccessWindow = 30 * 24 * time.Hour
	// DownloadLimit caps served downloads per (user, file).
	DownloadLimit = 5
	// Uncapped marks free and preview files, which have no remaining count.
	Uncapped = -1
)

// Reason identifies a denial outcome. Every denial carries one of these so
// the caller can render a specific locked/expired state, never a generic
// failure.
type Reason string

const (
	ReasonNotAuthenticated Reason = "not_authenticated"
	ReasonNotPurchased     Reason = "not_purchased"
	ReasonExpired          Reason = "expired"
	ReasonLimitReached     Reason = "limit_reached"
	ReasonNotFound         Reason = "not_found"
)

// Decision is the derived entitlement for a (user, file) pair.
type Decision struct {
	Granted   bool      `json:"granted"`
	Reason    Reason    `json:"reason,omitempty"`
	Remaining int       `json:"remaining"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Store is the read surface the checker needs. It performs no writes; the
// caller owns appending the download log after serving bytes.
type Store interface {
	GetProductFile(ctx context.Context, id string) (domain.ProductFile, bool, error)
	GetProduct(ctx context.Context, id string) (domain.Product, bool, error)
	ListBundlesContaining(ctx context.Context, productID string) ([]string, error)
	EarliestPaidOrder(ctx context.Context, userID string, productIDs []string) (domain.Order, bool, error)
	CountDownloads(ctx context.Context, userID, fileID string) (int, error)
}

// Checker evaluates download entitlements against injected store reads.
type Checker struct {
	store Store
	now   func() time.Time
}

// NewChecker builds a checker using the wall clock.
func NewChecker(s Store) *Checker {
	return NewCheckerWithClock(s, time.Now)
}

// NewCheckerWithClock builds a checker with an injected clock.
func NewCheckerWithClock(s Store, now func() time.Time) *Checker {
	return &Checker{store: s, now: now}
}

// Check decides whether userID may download fileID right now. An empty
// userID means the caller is anonymous; anonymous access is allowed only
// for free and preview files. Returned errors are store failures, never
// entitlement denials.
func (c *Checker) Check(ctx context.Context, userID, fileID string) (Decision, error) {
	file, ok, err := c.store.GetProductFile(ctx, fileID)
	if err != nil {
		return Decision{}, fmt.Errorf("load file: %w", err)
	}
	if !ok {
		return deny(ReasonNotFound), nil
	}
	product, ok, err := c.store.GetProduct(ctx, file.ProductID)
	if err != nil {
		return Decision{}, fmt.Errorf("load product: %w", err)
	}
	if !ok {
		return deny(ReasonNotFound), nil
	}

	// Preview files and free files bypass purchase and limit checks.
	if file.IsPreview || file.EffectiveAccess(product) == domain.AccessFree {
		return Decision{Granted: true, Remaining: Uncapped}, nil
	}

	if userID == "" {
		return deny(ReasonNotAuthenticated), nil
	}

	// A bundle purchase qualifies for every component's files, so the
	// owning product plus any bundle containing it can carry the order.
	qualifying := []string{file.ProductID}
	bundleIDs, err := c.store.ListBundlesContaining(ctx, file.ProductID)
	if err != nil {
		return Decision{}, fmt.Errorf("load bundles: %w", err)
	}
	qualifying = append(qualifying, bundleIDs...)

	order, found, err := c.store.EarliestPaidOrder(ctx, userID, qualifying)
	if err != nil {
		return Decision{}, fmt.Errorf("load paid order: %w", err)
	}
	if !found {
		return deny(ReasonNotPurchased), nil
	}

	// The earliest purchase starts the clock, even when the product was
	// bought again later. The instant purchase+30d itself is still valid;
	// only strictly later requests expire.
	expiresAt := order.CreatedAt.Add(AccessWindow)
	if c.now().After(expiresAt) {
		return Decision{Reason: ReasonExpired, Remaining: 0, ExpiresAt: expiresAt}, nil
	}

	count, err := c.store.CountDownloads(ctx, userID, fileID)
	if err != nil {
		return Decision{}, fmt.Errorf("count downloads: %w", err)
	}
	if count >= DownloadLimit {
		return Decision{Reason: ReasonLimitReached, Remaining: 0, ExpiresAt: expiresAt}, nil
	}

	return Decision{Granted: true, Remaining: DownloadLimit - count, ExpiresAt: expiresAt}, nil
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason, Remaining: 0}
}
