package enums

import "fmt"

// NotificationType classifies notifications for templating and channel rules.
type NotificationType string

const (
	NotificationTypeOrder       NotificationType = "order"
	NotificationTypeOrderStatus NotificationType = "order_status"
	NotificationTypeReturn      NotificationType = "return"
	NotificationTypePenalty     NotificationType = "penalty"
	NotificationTypeSettlement  NotificationType = "settlement"
	NotificationTypeSystem      NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrder,
	NotificationTypeOrderStatus,
	NotificationTypeReturn,
	NotificationTypePenalty,
	NotificationTypeSettlement,
	NotificationTypeSystem,
}

// String implements fmt.Stringer.
func (v NotificationType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known NotificationType.
func (v NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
