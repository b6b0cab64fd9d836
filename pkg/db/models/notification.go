package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// Notification stores in-app notification payloads for a recipient.
type Notification struct {
	ID            uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RecipientID   uuid.UUID              `gorm:"type:uuid;not null"`
	RecipientRole enums.ActorRole        `gorm:"type:actor_role;not null"`
	Type          enums.NotificationType `gorm:"type:notification_type;not null"`
	Title         string                 `gorm:"type:text;not null"`
	Message       string                 `gorm:"type:text;not null"`
	Data          types.JSONMap          `gorm:"type:jsonb"`
	ReadAt        *time.Time             `gorm:"type:timestamptz"`
	CreatedAt     time.Time              `gorm:"type:timestamptz;autoCreateTime"`
}
