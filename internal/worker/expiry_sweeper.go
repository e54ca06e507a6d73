package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExpiryService is the slice of the approval service the sweeper needs
type ExpiryService interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// ExpirySweeper periodically expires pending approvals whose deadline has
// passed. Expiry is checked again inside each write transaction, so an
// approver action racing the sweep always wins.
type ExpirySweeper struct {
	service ExpiryService
	logger  *zap.Logger

	interval  time.Duration
	batchSize int

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(service ExpiryService, interval time.Duration, batchSize int, logger *zap.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		service:   service,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start starts the sweep loop
func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("expiry sweeper is already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.isRunning = true

	s.logger.Info("ExpirySweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize))

	go s.sweepLoop(ctx)

	return nil
}

// Stop stops the sweep loop
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	s.isRunning = false
	if s.cancel != nil {
		s.cancel()
	}

	s.logger.Info("ExpirySweeper stopped")
}

// Name returns the worker name for identification
func (s *ExpirySweeper) Name() string {
	return "ExpirySweeper"
}

func (s *ExpirySweeper) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Sweep immediately on start
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Sweep loop context cancelled")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	expired, err := s.service.ExpireOverdue(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}

	if expired > 0 {
		s.logger.Info("Expiry sweep completed", zap.Int("expired", expired))
	}
}
