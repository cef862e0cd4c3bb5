package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
)

const (
	fallbackMarker    = "R"
	fallbackSuffixLen = 6
	base36Alphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type fallbackRecorder interface {
	IncSequenceFallback(device string)
}

// Generator issues human-readable ticket codes.
type Generator interface {
	// NextTicketCode never fails: when the counter store is unavailable it returns a
	// random-suffixed code and logs the failure.
	NextTicketCode(ctx context.Context, deviceType string, serviceType enums.ServiceType, now time.Time) string
}

type service struct {
	repo    Repository
	tx      txRunner
	logg    *logger.Logger
	metrics fallbackRecorder
	suffix  func() string
}

// NewService builds a ticket code generator. Logger and metrics are optional.
func NewService(repo Repository, tx txRunner, logg *logger.Logger, metrics fallbackRecorder) (Generator, error) {
	if repo == nil {
		return nil, fmt.Errorf("sequence repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		logg:    logg,
		metrics: metrics,
		suffix:  randomSuffix,
	}, nil
}

func (s *service) NextTicketCode(ctx context.Context, deviceType string, serviceType enums.ServiceType, now time.Time) string {
	key := SequenceKey(deviceType, serviceType, now)

	value, err := s.next(ctx, key)
	if err != nil {
		code := key + fallbackMarker + s.suffix()
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"seq_key":     key,
			"ticket_code": code,
		})
		s.logg.Error(logCtx, "ticket sequence unavailable, issued fallback code", err)
		if s.metrics != nil {
			s.metrics.IncSequenceFallback(DeviceCode(deviceType))
		}
		return code
	}
	return formatTicketCode(key, value)
}

func (s *service) next(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Seed(ctx, key); err != nil {
			return fmt.Errorf("seed sequence %s: %w", key, err)
		}
		row, err := repo.LockForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock sequence %s: %w", key, err)
		}
		value = row.NextValue
		if err := repo.SetNext(ctx, key, value+1); err != nil {
			return fmt.Errorf("advance sequence %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// randomSuffix draws base-36 characters from a fresh UUIDv4.
func randomSuffix() string {
	id := uuid.New()
	var b strings.Builder
	b.Grow(fallbackSuffixLen)
	for i := 0; i < fallbackSuffixLen; i++ {
		b.WriteByte(base36Alphabet[int(id[i])%len(base36Alphabet)])
	}
	return b.String()
}
