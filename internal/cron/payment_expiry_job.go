package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/tmakori/sokohub-backend/pkg/logger"
)

type pendingPaymentExpirer interface {
	ExpirePending(ctx context.Context, now time.Time) (int, error)
}

// PaymentExpiryJobParams configure the pending payment sweep.
type PaymentExpiryJobParams struct {
	Logger   *logger.Logger
	Payments pendingPaymentExpirer
}

// NewPaymentExpiryJob builds the job that fails payment attempts stuck
// in pending past their TTL. The order stays pending so the buyer can
// open a fresh attempt.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &paymentExpiryJob{
		logg:     params.Logger,
		payments: params.Payments,
		now:      time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg     *logger.Logger
	payments pendingPaymentExpirer
	now      func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	expired, err := j.payments.ExpirePending(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("payment expiry sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"expired": expired})
	j.logg.Info(logCtx, "payment expiry sweep complete")
	return nil
}
