package settlements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/ledger"
	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-orders/pkg/pagination"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// DefaultHoldPeriod is how long a delivered item waits before it is paid out.
const DefaultHoldPeriod = 7 * 24 * time.Hour

// Service batches aged deliveries into seller settlements and moves them
// through payout.
type Service interface {
	Sweep(ctx context.Context) (SweepResult, error)
	Get(ctx context.Context, actor types.Actor, settlementID uuid.UUID) (*models.Settlement, error)
	List(ctx context.Context, actor types.Actor, params ListParams) (*SettlementList, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Settlement, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	sellers    sellerResolver
	ledger     ledger.Service
	outbox     outboxPublisher
	notifier   notifier
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	now        func() time.Time
	holdPeriod time.Duration
}

// ServiceParams wires the settlements service.
type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Sellers    sellerResolver
	Ledger     ledger.Service
	Outbox     outboxPublisher
	Notifier   notifier
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
	Now        func() time.Time
	HoldPeriod time.Duration
}

// NewService builds the settlements service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repository == nil:
		return nil, fmt.Errorf("settlements repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Sellers == nil:
		return nil, fmt.Errorf("seller resolver required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	}

	svc := &service{
		repo:       params.Repository,
		tx:         params.Tx,
		sellers:    params.Sellers,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		notifier:   params.Notifier,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        params.Now,
		holdPeriod: params.HoldPeriod,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.holdPeriod <= 0 {
		svc.holdPeriod = DefaultHoldPeriod
	}
	return svc, nil
}

func (s *service) Get(ctx context.Context, actor types.Actor, settlementID uuid.UUID) (*models.Settlement, error) {
	if settlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id required")
	}
	settlement, err := s.load(ctx, s.repo, settlementID, false)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case enums.ActorRoleAdmin:
		return settlement, nil
	case enums.ActorRoleSeller:
		sellerID, err := s.sellerScope(ctx, actor)
		if err != nil {
			return nil, err
		}
		if sellerID != settlement.SellerID {
			return nil, s.denied(ctx, "settlement belongs to another seller")
		}
		return settlement, nil
	default:
		return nil, s.denied(ctx, "role cannot view settlements")
	}
}

func (s *service) List(ctx context.Context, actor types.Actor, params ListParams) (*SettlementList, error) {
	query := listQuery{Status: params.Status, Limit: params.Limit}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid settlement status")
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	switch actor.Role {
	case enums.ActorRoleSeller:
		sellerID, err := s.sellerScope(ctx, actor)
		if err != nil {
			return nil, err
		}
		query.SellerID = &sellerID
	case enums.ActorRoleAdmin:
		query.SellerID = params.SellerID
	default:
		return nil, s.denied(ctx, "role cannot list settlements")
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}
	page := pagination.Trim(rows, params.Limit, func(row models.Settlement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	if page.Items == nil {
		page.Items = []models.Settlement{}
	}
	return &SettlementList{Settlements: page.Items, NextCursor: page.NextCursor}, nil
}

// UpdateStatus lets an admin record payout progress. Paid and failed moves
// are mirrored into the seller ledger.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Settlement, error) {
	actor := input.Actor
	ctx = s.logg.WithUserID(ctx, actor.UserID.String())
	ctx = s.logg.WithField(ctx, "settlement_id", input.SettlementID.String())
	if !actor.IsAdmin() {
		return nil, s.denied(ctx, "only admins can update settlements")
	}
	if input.SettlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid settlement status")
	}

	var settlement *models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if settlement, err = s.load(ctx, repo, input.SettlementID, true); err != nil {
			return err
		}
		if settlement.Status == enums.SettlementStatusPaid {
			return pkgerrors.Rejection(pkgerrors.CodeStateConflict, pkgerrors.ReasonAlreadySettled,
				"settlement has already been paid")
		}
		if !settlement.Status.CanMoveTo(input.Status) {
			return pkgerrors.Rejection(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidTransition,
				fmt.Sprintf("cannot move settlement from %s to %s", settlement.Status, input.Status)).
				WithDetails(map[string]any{
					"from": string(settlement.Status),
					"to":   string(input.Status),
				})
		}

		now := s.now()
		updates := map[string]any{"status": input.Status}
		settlement.Status = input.Status
		if ref := strings.TrimSpace(input.TransactionRef); ref != "" {
			settlement.TransactionRef = &ref
			updates["transaction_ref"] = ref
		}
		if notes := strings.TrimSpace(input.Notes); notes != "" {
			settlement.Notes = &notes
			updates["notes"] = notes
		}
		if input.Status == enums.SettlementStatusPaid {
			settlement.PaidAt = &now
			updates["paid_at"] = now
		}
		if err := repo.Update(ctx, settlement.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update settlement")
		}

		if err := s.recordPayout(ctx, tx, settlement, actor); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementUpdated,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   settlement.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.SettlementUpdatedEvent{
				SettlementID:   settlement.ID,
				SellerID:       settlement.SellerID,
				Status:         settlement.Status,
				TransactionRef: settlement.TransactionRef,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "status", string(settlement.Status)), "settlement status updated")
	s.notifier.Send(ctx, notifications.Message{
		RecipientID:   settlement.SellerID,
		RecipientRole: enums.ActorRoleSeller,
		Type:          enums.NotificationTypeSettlement,
		Title:         "Settlement " + statusTitle(settlement.Status),
		Body:          fmt.Sprintf("Your settlement of %s is now %s.", settlement.Amount.StringFixed(2), settlement.Status),
		Data:          settlementData(settlement),
		SMS:           settlement.Status == enums.SettlementStatusPaid,
	})
	return settlement, nil
}

// recordPayout writes the ledger entry for paid and failed moves. A failed
// settlement can be retried, so a repeated failure reuses the first entry.
func (s *service) recordPayout(ctx context.Context, tx *gorm.DB, settlement *models.Settlement, actor types.Actor) error {
	var eventType enums.LedgerEventType
	switch settlement.Status {
	case enums.SettlementStatusPaid:
		eventType = enums.LedgerEventTypeSettlementPaid
	case enums.SettlementStatusFailed:
		eventType = enums.LedgerEventTypeSettlementFailed
	default:
		return nil
	}

	ledgerSvc := s.ledger.WithTx(tx)
	exists, err := ledgerSvc.HasEvent(ctx, settlement.ID, eventType)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ledger")
	}
	if exists {
		return nil
	}

	metadata, err := json.Marshal(map[string]any{"transaction_ref": settlement.TransactionRef})
	if err != nil {
		return err
	}
	_, err = ledgerSvc.RecordEvent(ctx, ledger.RecordLedgerEventInput{
		SellerID:     settlement.SellerID,
		SettlementID: &settlement.ID,
		ActorUserID:  actor.ActorID(),
		Type:         eventType,
		Amount:       settlement.Amount,
		Metadata:     metadata,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record settlement ledger event")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, settlementID uuid.UUID, forUpdate bool) (*models.Settlement, error) {
	var (
		settlement *models.Settlement
		err        error
	)
	if forUpdate {
		settlement, err = repo.FindByIDForUpdate(ctx, settlementID)
	} else {
		settlement, err = repo.FindByID(ctx, settlementID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}
	return settlement, nil
}

func (s *service) sellerScope(ctx context.Context, actor types.Actor) (uuid.UUID, error) {
	if actor.SellerID != nil && *actor.SellerID != uuid.Nil {
		return *actor.SellerID, nil
	}
	seller, err := s.sellers.SellerForUser(ctx, actor.UserID)
	if err != nil {
		return uuid.Nil, err
	}
	return seller.ID, nil
}

func (s *service) denied(ctx context.Context, reason string) error {
	s.logg.AccessDenied(ctx, reason)
	return pkgerrors.New(pkgerrors.CodeForbidden, "you do not have permission to access this settlement").
		WithDetails(map[string]any{"reason": reason})
}

func settlementData(settlement *models.Settlement) map[string]any {
	return map[string]any{
		"settlement_id": settlement.ID.String(),
		"amount":        settlement.Amount.StringFixed(2),
		"status":        string(settlement.Status),
	}
}

func statusTitle(status enums.SettlementStatus) string {
	switch status {
	case enums.SettlementStatusPaid:
		return "Paid"
	case enums.SettlementStatusFailed:
		return "Failed"
	case enums.SettlementStatusProcessing:
		return "Processing"
	default:
		return "Created"
	}
}
