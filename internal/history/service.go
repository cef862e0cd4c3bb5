package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the status history ledger.
type Service interface {
	// RecordTransition must run inside the transaction that changes the request status.
	RecordTransition(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.StatusHistoryEntry, error)
	RecordNote(ctx context.Context, input NoteInput) (*models.StatusHistoryEntry, error)
	RecordNoteTx(ctx context.Context, tx *gorm.DB, input NoteInput) (*models.StatusHistoryEntry, error)
	HistoryFor(ctx context.Context, requestID uuid.UUID) ([]models.StatusHistoryEntry, error)
	LatestFor(ctx context.Context, requestID uuid.UUID) (*models.StatusHistoryEntry, error)
}

// TransitionInput describes a status change being recorded.
type TransitionInput struct {
	RequestID uuid.UUID
	Status    enums.RequestStatus
	Note      string
	ActorID   *uuid.UUID
}

// NoteInput describes a freeform annotation; the status is read from the request.
type NoteInput struct {
	RequestID uuid.UUID
	Note      string
	ActorID   *uuid.UUID
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds the ledger service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("history repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) RecordTransition(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.StatusHistoryEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "status transitions must be recorded inside a transaction")
	}
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid request status")
	}
	entry := &models.StatusHistoryEntry{
		RequestID: input.RequestID,
		Status:    input.Status,
		Note:      optionalNote(input.Note),
		ChangedBy: normalizeActor(input.ActorID),
	}
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert status history")
	}
	return entry, nil
}

func (s *service) RecordNote(ctx context.Context, input NoteInput) (*models.StatusHistoryEntry, error) {
	var entry *models.StatusHistoryEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.RecordNoteTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) RecordNoteTx(ctx context.Context, tx *gorm.DB, input NoteInput) (*models.StatusHistoryEntry, error) {
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	note := strings.TrimSpace(input.Note)
	if note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "note is required")
	}

	repo := s.repo.WithTx(tx)
	status, err := repo.CurrentRequestStatus(ctx, input.RequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repair request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load request status")
	}

	entry := &models.StatusHistoryEntry{
		RequestID:    input.RequestID,
		Status:       status,
		Note:         &note,
		ChangedBy:    normalizeActor(input.ActorID),
		IsAnnotation: true,
	}
	if err := repo.Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert history note")
	}
	return entry, nil
}

func (s *service) HistoryFor(ctx context.Context, requestID uuid.UUID) ([]models.StatusHistoryEntry, error) {
	entries, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list status history")
	}
	return entries, nil
}

func (s *service) LatestFor(ctx context.Context, requestID uuid.UUID) (*models.StatusHistoryEntry, error) {
	entry, err := s.repo.Latest(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no history for request")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest history")
	}
	return entry, nil
}

func optionalNote(note string) *string {
	trimmed := strings.TrimSpace(note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeActor(actor *uuid.UUID) *uuid.UUID {
	if actor == nil || *actor == uuid.Nil {
		return nil
	}
	id := *actor
	return &id
}
