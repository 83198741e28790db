package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/store"
)

// HousekeepingService periodically deletes expired authorization codes and
// refresh tokens so the tables do not grow without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background(), time.Now())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background(), time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup deletes everything that expired before now. Each deletion is
// independent; a failure in one does not stop the other.
func (s *HousekeepingService) Cleanup(ctx context.Context, now time.Time) (codes, tokens int64) {
	var err error

	codes, err = s.Store.AuthorizationCodes().DeleteExpiredAuthorizationCodes(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired authorization codes", "error", err)
	}

	tokens, err = s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"authorization_codes", codes,
		"refresh_tokens", tokens,
	)
	return codes, tokens
}
