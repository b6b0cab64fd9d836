package settlements

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/ledger"
	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	dbtypes "github.com/angelmondragon/marketplace-orders/pkg/db/types"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox/payloads"
)

type sellerBatch struct {
	sellerID uuid.UUID
	itemIDs  []uuid.UUID
	orderIDs []uuid.UUID
	amount   decimal.Decimal
}

// Sweep settles every delivered item older than the hold period, one
// settlement per seller. Each seller batch commits on its own; a failed batch
// is logged and picked up again on the next run.
func (s *service) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	cutoff := now.Add(-s.holdPeriod)

	items, err := s.repo.EligibleItems(ctx, cutoff)
	if err != nil {
		return SweepResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select settleable items")
	}

	batches := groupBySeller(items)
	result := SweepResult{Sellers: len(batches)}
	var errs []error
	for _, batch := range batches {
		sellerCtx := s.logg.WithField(ctx, "seller_id", batch.sellerID.String())

		settlement, err := s.settle(sellerCtx, batch, cutoff, now)
		if err != nil {
			s.logg.Error(sellerCtx, "create settlement", err)
			errs = append(errs, fmt.Errorf("seller %s: %w", batch.sellerID, err))
			continue
		}
		result.Settlements++
		result.Items += settlement.ItemCount

		s.notifier.Send(sellerCtx, notifications.Message{
			RecipientID:   settlement.SellerID,
			RecipientRole: enums.ActorRoleSeller,
			Type:          enums.NotificationTypeSettlement,
			Title:         "Settlement Created",
			Body: fmt.Sprintf("A settlement of %s covering %d items is pending payout.",
				settlement.Amount.StringFixed(2), settlement.ItemCount),
			Data: settlementData(settlement),
		})
	}

	s.metrics.AddSettlements(result.Settlements)
	if result.Sellers > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"sellers":     result.Sellers,
			"settlements": result.Settlements,
			"items":       result.Items,
		}), "settlement sweep finished")
	}
	return result, multierr.Combine(errs...)
}

func (s *service) settle(ctx context.Context, batch sellerBatch, periodEnd, now time.Time) (*models.Settlement, error) {
	settlement := &models.Settlement{
		ID:        uuid.New(),
		SellerID:  batch.sellerID,
		OrderIDs:  dbtypes.UUIDArray(batch.orderIDs),
		ItemCount: len(batch.itemIDs),
		Amount:    batch.amount.Round(2),
		Status:    enums.SettlementStatusPending,
		PeriodEnd: periodEnd,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, settlement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement")
		}

		claimed, err := repo.ClaimItems(ctx, settlement.ID, batch.itemIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim items")
		}
		if claimed != int64(len(batch.itemIDs)) {
			return pkgerrors.Rejection(pkgerrors.CodeConflict, pkgerrors.ReasonAlreadySettled,
				"items were settled concurrently").
				WithDetails(map[string]any{"expected": len(batch.itemIDs), "claimed": claimed})
		}
		if _, err := repo.MarkOrdersSettled(ctx, batch.orderIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark orders settled")
		}

		metadata, err := json.Marshal(map[string]any{
			"order_ids":  batch.orderIDs,
			"item_count": settlement.ItemCount,
			"period_end": periodEnd,
		})
		if err != nil {
			return err
		}
		_, err = s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
			SellerID:     settlement.SellerID,
			SettlementID: &settlement.ID,
			Type:         enums.LedgerEventTypeSettlementCreated,
			Amount:       settlement.Amount,
			Metadata:     metadata,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record settlement ledger event")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementCreated,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   settlement.ID,
			Data: payloads.SettlementCreatedEvent{
				SettlementID: settlement.ID,
				SellerID:     settlement.SellerID,
				OrderIDs:     batch.orderIDs,
				Amount:       settlement.Amount,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// groupBySeller keeps the repository ordering, so batches and their order ids
// come out in a stable sequence.
func groupBySeller(items []eligibleItem) []sellerBatch {
	var batches []sellerBatch
	index := make(map[uuid.UUID]int)
	seenOrders := make(map[uuid.UUID]map[uuid.UUID]struct{})
	for _, item := range items {
		i, ok := index[item.SellerID]
		if !ok {
			i = len(batches)
			index[item.SellerID] = i
			batches = append(batches, sellerBatch{sellerID: item.SellerID, amount: decimal.Zero})
			seenOrders[item.SellerID] = make(map[uuid.UUID]struct{})
		}
		batch := &batches[i]
		batch.itemIDs = append(batch.itemIDs, item.ItemID)
		batch.amount = batch.amount.Add(item.SellerAmount)
		if _, seen := seenOrders[item.SellerID][item.OrderID]; !seen {
			seenOrders[item.SellerID][item.OrderID] = struct{}{}
			batch.orderIDs = append(batch.orderIDs, item.OrderID)
		}
	}
	return batches
}
