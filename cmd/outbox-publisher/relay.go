package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/pkg/config"
	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
	"github.com/angelmondragon/repairdesk-backend/pkg/metrics"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize          = 50
	defaultPollInterval       = 500 * time.Millisecond
	defaultMaxAttempts        = 10
	defaultNotificationMaxAge = 24 * time.Hour
	publishTimeout            = 15 * time.Second
	maxBackoff                = 10 * time.Second
	jitterWindow              = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// RelayParams wires the relay. Topics defaults to the Pub/Sub client's publishers.
type RelayParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Registry   registryResolver
	DLQ        dlqRepository
	Topics     topicPublishers
	Metrics    *metrics.OutboxMetrics
}

// Relay moves committed outbox rows onto Pub/Sub.
// Request lifecycle events must all arrive, however late. Customer
// notifications stop being worth sending after NotificationMaxAge and are
// dead-lettered as expired instead.
type Relay struct {
	logg    *logger.Logger
	db      dbClient
	pubsub  pubSubClient
	repo    outboxRepository
	events  registryResolver
	dlq     dlqRepository
	topics  topicPublishers
	metrics *metrics.OutboxMetrics
	now     func() time.Time

	batchSize          int
	maxAttempts        int
	pollInterval       time.Duration
	notificationMaxAge time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	}

	topics := params.Topics
	if topics == nil {
		topics = clientTopics(params.PubSub)
	}

	cfg := params.Config.Outbox
	relay := &Relay{
		logg:               params.Logger,
		db:                 params.DB,
		pubsub:             params.PubSub,
		repo:               params.Repository,
		events:             params.Registry,
		dlq:                params.DLQ,
		topics:             topics,
		metrics:            params.Metrics,
		now:                time.Now,
		batchSize:          orDefault(cfg.BatchSize, defaultBatchSize),
		maxAttempts:        orDefault(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:       time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		notificationMaxAge: cfg.NotificationMaxAge,
	}
	if relay.pollInterval <= 0 {
		relay.pollInterval = defaultPollInterval
	}
	if relay.notificationMaxAge <= 0 {
		relay.notificationMaxAge = defaultNotificationMaxAge
	}
	return relay, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one; a partial batch means the backlog is drained.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": r.db.Ping, "pubsub": r.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		handled, err := r.relayBatch(ctx)
		if err != nil {
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = nextBackoff(wait, r.pollInterval, maxBackoff)
		} else {
			wait = r.pollInterval
			if handled == r.batchSize {
				continue
			}
		}
		if err := sleepCtx(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// relayBatch handles one locked batch and reports how many rows it settled.
func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := r.relayRow(ctx, tx, row); err != nil {
				return err
			}
		}
		handled = len(rows)
		return nil
	})
	return handled, err
}

// relayRow settles one row as published, retried or dead-lettered. Only
// bookkeeping failures are returned; they abort the batch transaction.
func (r *Relay) relayRow(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	logCtx := r.logg.WithFields(ctx, rowFields(row))

	resolved, err := r.events.Resolve(row)
	if err != nil {
		return r.deadLetter(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	dest := routeFor(row, resolved)
	logCtx = r.logg.WithFields(logCtx, dest.fields())

	if dest.customerFacing {
		if age := r.now().Sub(dest.occurredAt); age > r.notificationMaxAge {
			return r.deadLetter(logCtx, tx, row, enums.OutboxDLQReasonExpired,
				fmt.Errorf("notification is %s old, limit %s", age.Round(time.Second), r.notificationMaxAge))
		}
	}

	err = r.publish(ctx, dest.topic, buildMessage(row, resolved))
	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		if err := r.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.metrics.IncPublished(string(row.EventType))
		r.logg.Info(logCtx, "outbox event relayed")
		return nil
	case errors.As(err, &permanent):
		return r.deadLetter(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	case row.AttemptCount+1 >= r.maxAttempts:
		return r.deadLetter(logCtx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
	}

	retryCtx := r.logg.WithFields(logCtx, map[string]any{"attempt_count": row.AttemptCount + 1, "error": err.Error()})
	r.logg.Warn(retryCtx, "outbox publish failed, will retry")
	r.metrics.IncFailed(string(row.EventType))
	if err := r.repo.MarkFailedTx(tx, row.ID, err); err != nil {
		return fmt.Errorf("mark failure %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, topic string, msg *outboundMessage) error {
	pub := r.topics(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return pub.Publish(publishCtx, msg)
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": cause.Error()})
	r.logg.Warn(logCtx, "outbox event dead-lettered")

	message := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  row.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.repo.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	r.metrics.IncDeadLettered(string(row.EventType), string(reason))
	return nil
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
