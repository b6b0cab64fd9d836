package returns

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox/payloads"
)

// ApplyPenalties flags every return whose evidence video waited longer than
// the review window. Each return is claimed in its own transaction, so one
// failure leaves the rest of the batch untouched and is retried next run.
// The return status is left as is.
func (s *service) ApplyPenalties(ctx context.Context) (SweepResult, error) {
	now := s.now()
	cutoff := now.Add(-s.penaltyWindow)

	candidates, err := s.repo.PenaltyCandidates(ctx, cutoff, s.sweepBatch)
	if err != nil {
		return SweepResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select penalty candidates")
	}

	result := SweepResult{Candidates: len(candidates)}
	var errs []error
	for i := range candidates {
		ret := &candidates[i]
		retCtx := s.logg.WithField(ctx, "return_id", ret.ID.String())

		claimed, err := s.penalize(retCtx, ret, cutoff, now)
		if err != nil {
			s.logg.Error(retCtx, "apply return penalty", err)
			errs = append(errs, fmt.Errorf("return %s: %w", ret.ID, err))
			continue
		}
		if !claimed {
			continue
		}
		result.Penalized++
		s.notifier.Send(retCtx, notifications.Message{
			RecipientID:   ret.SellerID,
			RecipientRole: enums.ActorRoleSeller,
			Type:          enums.NotificationTypePenalty,
			Title:         "Return Auto-Approved",
			Body: fmt.Sprintf("The evidence video for %s was not reviewed within %s. The return was auto-approved and a penalty applied.",
				itemLabel(ret), s.penaltyWindow),
			Data: returnData(ret),
		})
	}

	s.metrics.AddPenalties(result.Penalized)
	if result.Penalized > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"candidates": result.Candidates,
			"penalized":  result.Penalized,
		}), "return penalty sweep finished")
	}
	return result, multierr.Combine(errs...)
}

func (s *service) penalize(ctx context.Context, ret *models.Return, cutoff, now time.Time) (bool, error) {
	var claimed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		claimed, err = s.repo.WithTx(tx).ApplyPenalty(ctx, ret.ID, cutoff)
		if err != nil || !claimed {
			return err
		}
		ret.PenaltyApplied = true
		ret.AutoApproved = true

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnPenalized,
			AggregateType: enums.AggregateReturn,
			AggregateID:   ret.ID,
			Data: payloads.ReturnPenalizedEvent{
				ReturnID:        ret.ID,
				SellerID:        ret.SellerID,
				VideoUploadedAt: *ret.VideoUploadedAt,
				PenalizedAt:     now,
			},
			OccurredAt: now,
		})
	})
	return claimed, err
}
