package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// A nil UnitID subscribes the browser to alerts from every unit.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	UnitID    *string   `gorm:"column:unit_id;index;size:64"`
	CreatedAt time.Time `gorm:"not null"`
}
