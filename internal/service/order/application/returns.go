// internal/service/order/application/returns.go
package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/pkg/metrics"
	"nexus-settlement/internal/service/order/domain"
	"nexus-settlement/internal/service/order/domain/port"
)

// CascadePolicy bounds how hard a refund tries to mirror itself onto the order.
type CascadePolicy struct {
	Attempts int           // in-process attempts per approval
	Backoff  time.Duration // wait between in-process attempts
	// MaxScheduled caps how many times the deferred task is re-published before
	// the drift is left to reconciliation.
	MaxScheduled int
}

func (p CascadePolicy) withDefaults() CascadePolicy {
	if p.Attempts < 1 {
		p.Attempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 100 * time.Millisecond
	}
	if p.MaxScheduled < 1 {
		p.MaxScheduled = 5
	}
	return p
}

// ReturnApplicationService runs the return/refund workflow.
type ReturnApplicationService struct {
	returns   domain.ReturnRepository
	orders    domain.OrderRepository
	locker    port.Locker
	notifier  port.NotificationProducer
	scheduler port.CascadeScheduler
	tracer    trace.Tracer
	policy    CascadePolicy

	now   func() time.Time
	newID func() string
}

func NewReturnApplicationService(returns domain.ReturnRepository, orders domain.OrderRepository, locker port.Locker, notifier port.NotificationProducer, scheduler port.CascadeScheduler, tracer trace.Tracer, policy CascadePolicy) *ReturnApplicationService {
	return &ReturnApplicationService{
		returns: returns, orders: orders, locker: locker,
		notifier: notifier, scheduler: scheduler, tracer: tracer,
		policy: policy.withDefaults(),
		now:    time.Now, newID: uuid.NewString,
	}
}

func lockKey(orderID string) string {
	return "return-" + orderID
}

// CreateReturn opens a return against an order the customer owns. At most one
// return exists per order.
func (s *ReturnApplicationService) CreateReturn(ctx context.Context, req *CreateReturnRequest) (*domain.ReturnRequest, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateReturn")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", req.OrderID), attribute.String("user.id", req.UserID))

	if strings.TrimSpace(req.OrderID) == "" {
		return nil, domain.NewValidationError("order_id", "required")
	}

	unlock, err := s.locker.Lock(ctx, lockKey(req.OrderID))
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "lock order %s", req.OrderID)
	}
	defer s.release(ctx, unlock)

	order, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	existing, err := s.returns.FindByOrderID(ctx, req.OrderID)
	if err != nil && !errors.Is(err, domain.ErrReturnNotFound) {
		return nil, err
	}
	if existing != nil {
		metrics.ReturnsResolved.WithLabelValues("duplicate").Inc()
		return nil, errors.Wrapf(domain.ErrDuplicateReturn, "order %s already has return %s", req.OrderID, existing.ID)
	}

	r, err := domain.NewReturnRequest(s.newID(), order, req.UserID, req.Reason, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.returns.Create(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save return")
		return nil, err
	}

	metrics.ReturnsResolved.WithLabelValues("created").Inc()
	logger.Ctx(ctx).Info().Str("return", r.ID).Str("order", r.OrderID).Msg("return request created")
	return r, nil
}

// ResolveReturn approves or rejects a pending return. Approval also marks the
// order refunded; when that cannot be done now the result says so and the
// cascade is handed to the retry topic.
func (s *ReturnApplicationService) ResolveReturn(ctx context.Context, id string, req *ResolveReturnRequest) (*ResolveReturnResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.ResolveReturn")
	defer span.End()
	span.SetAttributes(attribute.String("return.id", id))

	to, err := domain.ParseReturnStatus(req.Status)
	if err != nil {
		return nil, err
	}
	r, err := s.returns.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.OrderID != "" && req.OrderID != r.OrderID {
		return nil, domain.NewValidationError("order_id", "does not match the return's order")
	}

	unlock, err := s.locker.Lock(ctx, lockKey(r.OrderID))
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "lock order %s", r.OrderID)
	}
	defer s.release(ctx, unlock)

	// Re-read under the lock.
	r, err = s.returns.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	retry := r.Status == domain.ReturnRefunded && to == domain.ReturnRefunded
	if !retry {
		if err := r.Resolve(to, s.now()); err != nil {
			return nil, err
		}
		if err := s.returns.UpdateStatus(ctx, r); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to update return")
			return nil, err
		}
		metrics.ReturnsResolved.WithLabelValues(string(to)).Inc()
		s.notifyResolved(ctx, r)
	}

	result := &ResolveReturnResult{Return: r}
	if to != domain.ReturnRefunded {
		return result, nil
	}

	if err := s.cascade(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order cascade pending")
		logger.Ctx(ctx).Error().Err(err).Str("return", r.ID).Str("order", r.OrderID).Msg("return refunded but order status not updated, scheduling retry")
		if !retry {
			// A retried approval is already counted.
			metrics.CascadeDrift.Inc()
		}
		s.schedule(ctx, r, 1)
		result.CascadePending = true
	}
	return result, nil
}

// cascade sets the order to Remboursé, retrying in-process.
func (s *ReturnApplicationService) cascade(ctx context.Context, r *domain.ReturnRequest) error {
	var lastErr error
	for attempt := 1; attempt <= s.policy.Attempts; attempt++ {
		lastErr = s.cascadeOnce(ctx, r)
		if lastErr == nil {
			metrics.CascadeRetries.WithLabelValues("applied").Inc()
			return nil
		}
		metrics.CascadeRetries.WithLabelValues("failed").Inc()
		if errors.Is(lastErr, domain.ErrOrderNotFound) || attempt == s.policy.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(lastErr, ctx.Err().Error())
		case <-time.After(s.policy.Backoff * time.Duration(attempt)):
		}
	}
	return errors.Wrap(domain.ErrCascadePending, lastErr.Error())
}

func (s *ReturnApplicationService) cascadeOnce(ctx context.Context, r *domain.ReturnRequest) error {
	order, err := s.orders.FindByID(ctx, r.OrderID)
	if err != nil {
		return err
	}
	if order.Status == domain.StatusRefunded {
		return nil
	}
	refunded := domain.StatusRefunded
	t, err := order.Apply(domain.StatusUpdate{Status: &refunded}, s.now())
	if err != nil {
		return err
	}
	if err := s.orders.Update(ctx, order); err != nil {
		return err
	}
	metrics.StatusTransitions.WithLabelValues(string(t.Kind), string(t.To)).Inc()
	logger.Ctx(ctx).Info().Str("order", order.ID).Str("from", string(t.From)).Str("return", r.ID).Msg("order refunded by return")
	return nil
}

func (s *ReturnApplicationService) schedule(ctx context.Context, r *domain.ReturnRequest, attempt int) {
	err := s.scheduler.ScheduleCascade(ctx, domain.ReturnCascadeRequested{
		ReturnID:    r.ID,
		OrderID:     r.OrderID,
		Attempt:     attempt,
		RequestedAt: s.now(),
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("return", r.ID).Msg("failed to schedule cascade retry; left for reconciliation")
	}
}

// ApplyCascade handles a deferred cascade task. It re-publishes the task until
// MaxScheduled, then leaves the drift to reconciliation. It only returns an
// error the consumer should not commit past.
func (s *ReturnApplicationService) ApplyCascade(ctx context.Context, evt *domain.ReturnCascadeRequested) error {
	ctx, span := s.tracer.Start(ctx, "app.ApplyCascade", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("return.id", evt.ReturnID), attribute.Int("cascade.attempt", evt.Attempt))

	r, err := s.returns.FindByID(ctx, evt.ReturnID)
	if errors.Is(err, domain.ErrReturnNotFound) {
		logger.Ctx(ctx).Warn().Str("return", evt.ReturnID).Msg("cascade task for a deleted return, dropping")
		return nil
	}
	if err != nil {
		return err
	}
	if r.Status != domain.ReturnRefunded {
		return nil
	}

	unlock, err := s.locker.Lock(ctx, lockKey(r.OrderID))
	if err != nil {
		return err
	}
	defer s.release(ctx, unlock)

	if err := s.cascade(ctx, r); err != nil {
		span.RecordError(err)
		if evt.Attempt >= s.policy.MaxScheduled {
			logger.Ctx(ctx).Error().Err(err).Str("return", r.ID).Msg("cascade retries exhausted; left for reconciliation")
			return nil
		}
		s.schedule(ctx, r, evt.Attempt+1)
		return nil
	}
	metrics.CascadeDrift.Dec()
	return nil
}

// Reconcile lists every refunded return whose order is not refunded.
func (s *ReturnApplicationService) Reconcile(ctx context.Context) ([]domain.Drift, error) {
	ctx, span := s.tracer.Start(ctx, "app.Reconcile")
	defer span.End()

	refunded, err := s.returns.ListByStatus(ctx, domain.ReturnRefunded)
	if err != nil {
		return nil, err
	}
	drifts := make([]domain.Drift, 0)
	for _, r := range refunded {
		order, err := s.orders.FindByID(ctx, r.OrderID)
		if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
		if d, ok := domain.DriftOf(r, order); ok {
			drifts = append(drifts, d)
		}
	}
	metrics.CascadeDrift.Set(float64(len(drifts)))
	span.SetAttributes(attribute.Int("reconcile.checked", len(refunded)), attribute.Int("reconcile.drift", len(drifts)))
	if len(drifts) > 0 {
		logger.Ctx(ctx).Warn().Int("drift", len(drifts)).Msg("refunded returns with unrefunded orders")
	}
	return drifts, nil
}

// Repair re-applies the cascade for every drift Reconcile finds.
func (s *ReturnApplicationService) Repair(ctx context.Context) (*RepairReport, error) {
	ctx, span := s.tracer.Start(ctx, "app.Repair")
	defer span.End()

	drifts, err := s.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	report := &RepairReport{Checked: len(drifts), Failed: make([]domain.Drift, 0)}
	for _, d := range drifts {
		r, err := s.returns.FindByID(ctx, d.ReturnID)
		if err == nil {
			err = s.repairOne(ctx, r)
		}
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("return", d.ReturnID).Str("order", d.OrderID).Msg("repair failed")
			report.Failed = append(report.Failed, d)
			continue
		}
		report.Repaired++
	}
	metrics.CascadeDrift.Set(float64(len(report.Failed)))
	return report, nil
}

func (s *ReturnApplicationService) repairOne(ctx context.Context, r *domain.ReturnRequest) error {
	unlock, err := s.locker.Lock(ctx, lockKey(r.OrderID))
	if err != nil {
		return err
	}
	defer s.release(ctx, unlock)
	return s.cascade(ctx, r)
}

func (s *ReturnApplicationService) notifyResolved(ctx context.Context, r *domain.ReturnRequest) {
	err := s.notifier.ReturnResolved(ctx, domain.ReturnResolved{
		ReturnID: r.ID,
		OrderID:  r.OrderID,
		UserID:   r.UserID,
		Status:   r.Status,
		At:       r.UpdatedAt,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("return", r.ID).Msg("failed to publish return.resolved")
	}
}

func (s *ReturnApplicationService) release(ctx context.Context, unlock func() error) {
	if err := unlock(); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to release lock")
	}
}
