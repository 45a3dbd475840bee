package enums

import "fmt"

// NotificationType classifies buyer and vendor notifications.
type NotificationType string

const (
	NotificationOrderCreated     NotificationType = "order_created"
	NotificationOrderCancelled   NotificationType = "order_cancelled"
	NotificationPaymentCompleted NotificationType = "payment_completed"
	NotificationPaymentFailed    NotificationType = "payment_failed"
	NotificationPaymentRefunded  NotificationType = "payment_refunded"
	NotificationShipmentUpdated  NotificationType = "shipment_updated"
)

var validNotificationTypes = []NotificationType{
	NotificationOrderCreated,
	NotificationOrderCancelled,
	NotificationPaymentCompleted,
	NotificationPaymentFailed,
	NotificationPaymentRefunded,
	NotificationShipmentUpdated,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
