package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"

	"github.com/draftboardhq/draftboard-backend/pkg/logger"
	"github.com/draftboardhq/draftboard-backend/pkg/metrics"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
	"github.com/draftboardhq/draftboard-backend/pkg/store"
)

// Sweep periodically re-derives local subscription state from the provider
// for every billable customer, correcting drift from missed webhooks. It is
// fully idempotent: re-running an interrupted sweep converges on the same
// rows through the same reconciler.
type Sweep struct {
	store      store.Store
	gateway    ProviderGateway
	reconciler *Reconciler
	metrics    *metrics.Metrics
	log        logger.Logger
	workers    int
}

// NewSweep creates a reconciliation sweep with bounded worker concurrency.
// m may be nil.
func NewSweep(st store.Store, gateway ProviderGateway, reconciler *Reconciler, m *metrics.Metrics, log logger.Logger, workers int) *Sweep {
	if workers < 1 {
		workers = 1
	}
	return &Sweep{
		store:      st,
		gateway:    gateway,
		reconciler: reconciler,
		metrics:    m,
		log:        log,
		workers:    workers,
	}
}

// Run reconciles all billable users. Per-customer failures are collected
// and returned joined; one bad customer never aborts the sweep. Provider
// failures are not retried inline — they become retryable entries for the
// next scheduled run.
func (s *Sweep) Run(ctx context.Context) error {
	users, err := s.store.ListBillableUsers(ctx)
	if err != nil {
		return err
	}
	s.log.Info("reconciliation sweep started", "customers", len(users))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	sem := make(chan struct{}, s.workers)

	for i := range users {
		u := users[i]
		if u.StripeCustomerID == nil || *u.StripeCustomerID == "" {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.reconcileCustomer(ctx, &u); err != nil {
				s.log.Warn("sweep customer failed",
					"user_id", u.ID,
					"customer_id", *u.StripeCustomerID,
					"error", err,
				)
				sentry.CaptureException(err)
				if s.metrics != nil {
					s.metrics.SweepCustomerErrors.Inc()
				}
				mu.Lock()
				errs = append(errs, fmt.Errorf("customer %s: %w", *u.StripeCustomerID, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if s.metrics != nil {
		s.metrics.SweepRunsTotal.Inc()
		s.metrics.SweepLastSuccess.SetToCurrentTime()
	}
	s.log.Info("reconciliation sweep finished", "customers", len(users), "failures", len(errs))
	return errors.Join(errs...)
}

func (s *Sweep) reconcileCustomer(ctx context.Context, u *models.User) error {
	snaps, err := s.gateway.ListCustomerSubscriptions(ctx, *u.StripeCustomerID)
	if err != nil {
		return err
	}

	var errs []error
	for _, snap := range snaps {
		if _, err := s.reconciler.Reconcile(ctx, snap, TriggerSweep); err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", snap.ID, err))
		}
	}
	return errors.Join(errs...)
}
