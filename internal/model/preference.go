package model

// Preference is a client-side setting kept in the local database.
type Preference struct {
	Key   string `gorm:"primaryKey;size:128"`
	Value string `gorm:"not null"`
}
