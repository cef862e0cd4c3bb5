package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/internal/invoices"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox/payloads"
)

const (
	quoteReminderAfterDays = 3
	quoteReminderBatch     = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type staleQuoteSource interface {
	StalePendingQuotes(ctx context.Context, quotedBefore time.Time, limit int) ([]invoices.StaleQuote, error)
	ClaimQuoteReminder(ctx context.Context, tx *gorm.DB, quote invoices.StaleQuote) (bool, error)
}

type reminderEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type QuoteReminderJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Quotes    staleQuoteSource
	Outbox    reminderEmitter
	AfterDays int
	BatchSize int
}

// NewQuoteReminderJob queues one reminder per quote round that has waited too long for a decision.
// A re-issued quote starts a new round.
func NewQuoteReminderJob(params QuoteReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Quotes == nil {
		return nil, fmt.Errorf("quote source required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox required")
	}
	afterDays := params.AfterDays
	if afterDays <= 0 {
		afterDays = quoteReminderAfterDays
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = quoteReminderBatch
	}
	return &quoteReminderJob{
		logg:      params.Logger,
		db:        params.DB,
		quotes:    params.Quotes,
		outbox:    params.Outbox,
		afterDays: afterDays,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type quoteReminderJob struct {
	logg      *logger.Logger
	db        txRunner
	quotes    staleQuoteSource
	outbox    reminderEmitter
	afterDays int
	batch     int
	now       func() time.Time
}

func (j *quoteReminderJob) Name() string { return "quote-reminder" }

func (j *quoteReminderJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.afterDays) * 24 * time.Hour)
	stale, err := j.quotes.StalePendingQuotes(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("quote reminder: %w", err)
	}

	var (
		errs    error
		queued  int
		skipped int
	)
	for _, quote := range stale {
		created, err := j.remind(ctx, quote)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invoice %s: %w", quote.InvoiceID, err))
			continue
		}
		if created {
			queued++
		} else {
			skipped++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"queued":     queued,
		"skipped":    skipped,
	})
	if errs != nil {
		j.logg.Warn(logCtx, "quote reminder finished with errors")
		return fmt.Errorf("quote reminder: %w", errs)
	}
	j.logg.Info(logCtx, "quote reminder complete")
	return nil
}

func (j *quoteReminderJob) remind(ctx context.Context, quote invoices.StaleQuote) (bool, error) {
	total, err := decimal.NewFromString(quote.Total)
	if err != nil {
		return false, fmt.Errorf("parse total %q: %w", quote.Total, err)
	}
	var created bool
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		claimed, err := j.quotes.ClaimQuoteReminder(ctx, tx, quote)
		if err != nil || !claimed {
			return err
		}
		if err := j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteReminder,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   quote.InvoiceID,
			Data: payloads.QuoteReminderEvent{
				InvoiceID:  quote.InvoiceID,
				RequestID:  quote.RequestID,
				CustomerID: quote.CustomerID,
				TicketCode: quote.TicketCode,
				Total:      total,
				QuotedAt:   quote.QuotedAt,
			},
		}); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
