package app

import (
	"context"
	"fmt"
	"time"

	"littlefidan/internal/domain"
	"littlefidan/internal/entitlement"
	"littlefidan/internal/util"
)

// downloadURLTTL bounds how long a presigned link stays usable.
const downloadURLTTL = 5 * time.Minute

// DownloadResult is a granted download: the decision plus a short-lived URL.
// Remaining reflects the state after this download was counted.
type DownloadResult struct {
	Decision entitlement.Decision
	File     domain.ProductFile
	URL      string
}

// CheckDownload evaluates entitlement without consuming a download.
func (a *App) CheckDownload(ctx context.Context, userID, fileID string) (entitlement.Decision, error) {
	return a.entitlement.Check(ctx, userID, fileID)
}

// Download evaluates entitlement, consumes one download for capped files and
// returns a presigned URL. A denial comes back with Granted=false and no
// error; errors are backend failures.
func (a *App) Download(ctx context.Context, userID, fileID string) (DownloadResult, error) {
	decision, err := a.entitlement.Check(ctx, userID, fileID)
	if err != nil {
		return DownloadResult{}, err
	}
	if !decision.Granted {
		return DownloadResult{Decision: decision}, nil
	}

	file, ok, err := a.store.GetProductFile(ctx, fileID)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("load file: %w", err)
	}
	if !ok {
		decision = entitlement.Decision{Reason: entitlement.ReasonNotFound}
		return DownloadResult{Decision: decision}, nil
	}

	entry := domain.DownloadLog{
		ID:        util.NewID(),
		UserID:    userID,
		FileID:    fileID,
		ProductID: file.ProductID,
		CreatedAt: a.now().UTC(),
	}

	if decision.Remaining == entitlement.Uncapped {
		// Free and preview downloads are logged for stats only, and only
		// when the caller is identified. Log failures never block serving.
		if userID != "" {
			if err := a.store.AppendDownload(ctx, entry); err != nil {
				util.LoggerFromContext(ctx).Warn("download log append failed", "file", fileID, "err", err)
			}
		}
	} else {
		// The conditional append recounts under a lock, so two concurrent
		// requests at the cap cannot both slip through.
		allowed, err := a.store.AppendDownloadBelowLimit(ctx, entry, entitlement.DownloadLimit)
		if err != nil {
			// Entitlement already granted; losing the counter is better
			// than refusing a paying customer.
			util.LoggerFromContext(ctx).Warn("download log append failed", "file", fileID, "err", err)
		} else if !allowed {
			decision = entitlement.Decision{
				Reason:    entitlement.ReasonLimitReached,
				ExpiresAt: decision.ExpiresAt,
			}
			return DownloadResult{Decision: decision}, nil
		}
		decision.Remaining--
	}

	url, err := a.objects.PresignGet(ctx, file.StorageKey, downloadURLTTL)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("presign download: %w", err)
	}
	return DownloadResult{Decision: decision, File: file, URL: url}, nil
}
