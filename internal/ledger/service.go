package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgdb "github.com/angelmondragon/marketplace-orders/pkg/db"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
)

// Service defines operations that record seller payout ledger events.
type Service interface {
	WithTx(tx *gorm.DB) Service
	RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	HasEvent(ctx context.Context, settlementID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.LedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
// Settlement events carry SettlementID; refunds carry ReturnID.
type RecordLedgerEventInput struct {
	SellerID     uuid.UUID             `json:"seller_id"`
	SettlementID *uuid.UUID            `json:"settlement_id,omitempty"`
	ReturnID     *uuid.UUID            `json:"return_id,omitempty"`
	ActorUserID  *uuid.UUID            `json:"actor_user_id,omitempty"`
	Type         enums.LedgerEventType `json:"type"`
	Amount       decimal.Decimal       `json:"amount"`
	Metadata     json.RawMessage       `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if input.SellerID == uuid.Nil {
		return nil, fmt.Errorf("seller id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.Type == enums.LedgerEventTypeRefund {
		if input.ReturnID == nil {
			return nil, fmt.Errorf("return id is required for refunds")
		}
	} else if input.SettlementID == nil {
		return nil, fmt.Errorf("settlement id is required for %s", input.Type)
	}
	if input.Amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative")
	}

	event := &models.LedgerEvent{
		ID:           uuid.New(),
		SellerID:     input.SellerID,
		SettlementID: input.SettlementID,
		ReturnID:     input.ReturnID,
		ActorUserID:  input.ActorUserID,
		Type:         input.Type,
		Amount:       input.Amount.Round(2),
		Metadata:     input.Metadata,
	}

	if err := s.repo.Create(ctx, event); err != nil {
		if pkgdb.IsUniqueViolation(err, "ux_ledger_events_settlement_type") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "ledger event already recorded").
				WithDetails(map[string]any{"settlement_id": input.SettlementID, "type": input.Type})
		}
		return nil, err
	}
	return event, nil
}

func (s *service) HasEvent(ctx context.Context, settlementID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if settlementID == uuid.Nil {
		return false, fmt.Errorf("settlement id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}

	count, err := s.repo.CountBySettlementAndType(ctx, settlementID, eventType)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.LedgerEvent, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	return s.repo.ListBySellerID(ctx, sellerID)
}
