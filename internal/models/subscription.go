package models

import "time"

// PushSubscription: one browser/mobile web-push endpoint. Stored verbatim
// from the subscription object the client obtains from its push service.
type PushSubscription struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Endpoint       string    `gorm:"size:500;not null;uniqueIndex" json:"endpoint"`
	ExpirationTime *string   `gorm:"size:50" json:"expirationTime,omitempty"`
	P256dh         string    `gorm:"size:255;not null" json:"p256dh"`
	Auth           string    `gorm:"size:255;not null" json:"auth"`
	CreatedAt      time.Time `json:"createdAt"`
}
