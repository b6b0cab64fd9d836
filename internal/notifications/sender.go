package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// Message is a notification addressed to one recipient. An in-app row is
// always written; email goes out when the recipient has an address; SMS only
// when requested and a phone number is known.
type Message struct {
	RecipientID   uuid.UUID
	RecipientRole enums.ActorRole
	Type          enums.NotificationType
	Title         string
	Body          string
	Data          map[string]any
	SMS           bool
}

// Sender delivers notifications. Delivery is fire-and-forget: channel failures
// are logged and never surface to the caller.
type Sender interface {
	Send(ctx context.Context, msg Message)
}

type sender struct {
	repo  Repository
	email EmailChannel
	sms   SMSChannel
	logg  *logger.Logger
	now   func() time.Time
}

// SenderParams wires the delivery channels. A nil Email or SMS disables that channel.
type SenderParams struct {
	Repository Repository
	Email      EmailChannel
	SMS        SMSChannel
	Logger     *logger.Logger
	Now        func() time.Time
}

func NewSender(params SenderParams) (Sender, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &sender{
		repo:  params.Repository,
		email: params.Email,
		sms:   params.SMS,
		logg:  logg,
		now:   now,
	}, nil
}

func (s *sender) Send(ctx context.Context, msg Message) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"recipient_id":      msg.RecipientID.String(),
		"recipient_role":    string(msg.RecipientRole),
		"notification_type": string(msg.Type),
	})
	if msg.RecipientID == uuid.Nil || !msg.RecipientRole.IsValid() || msg.RecipientRole == enums.ActorRoleSystem {
		s.logg.Warn(ctx, "notification dropped: invalid recipient")
		return
	}

	contact, err := s.repo.FindContact(ctx, msg.RecipientID, msg.RecipientRole)
	if err != nil {
		s.logg.Error(ctx, "notification recipient lookup failed", err)
		return
	}
	if contact == nil {
		s.logg.Warn(ctx, "notification dropped: recipient not found")
		return
	}

	row := &models.Notification{
		ID:            uuid.New(),
		RecipientID:   msg.RecipientID,
		RecipientRole: msg.RecipientRole,
		Type:          msg.Type,
		Title:         msg.Title,
		Message:       msg.Body,
		Data:          types.JSONMap(msg.Data),
		CreatedAt:     s.now(),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logg.Error(ctx, "in-app notification failed", err)
	}

	if s.email != nil && contact.Email != nil && *contact.Email != "" {
		if err := s.email.SendEmail(ctx, *contact.Email, msg.Title, msg.Body); err != nil {
			s.logg.Error(ctx, "email notification failed", err)
		}
	}

	if msg.SMS && s.sms != nil && contact.Phone != nil && *contact.Phone != "" {
		if err := s.sms.SendSMS(ctx, *contact.Phone, fmt.Sprintf("%s: %s", msg.Title, msg.Body)); err != nil {
			s.logg.Error(ctx, "sms notification failed", err)
		}
	}
}
