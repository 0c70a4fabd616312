// Package domain contains the persistence model and decision types for the
// daily usage ledger.
package domain

import (
	"time"
)

// DateLayout is the UTC calendar-date key format. The date is the reset
// boundary: a record whose date is not today's is treated as absent.
const DateLayout = "2006-01-02"

// Category is the request category charged against the daily quota.
type Category string

const (
	CategoryNormal   Category = "normal"
	CategoryResearch Category = "research"
	CategoryOnchain  Category = "onchain"
)

// ParseCategory validates a raw mode string against the closed category set.
func ParseCategory(raw string) (Category, bool) {
	switch Category(raw) {
	case CategoryNormal, CategoryResearch, CategoryOnchain:
		return Category(raw), true
	case "":
		return CategoryNormal, true
	default:
		return "", false
	}
}

// Reason explains a denied charge. Denials are normal outcomes, not errors.
type Reason string

const (
	ReasonCooldown   Reason = "cooldown"
	ReasonDailyLimit Reason = "daily-limit"

	// ReasonContention is returned only when the fallback path itself
	// exhausts its retry bound under in-process contention.
	ReasonContention Reason = "contention"

	// ReasonStoreUnavailable is returned only in fail-closed mode when the
	// remote store cannot be reached.
	ReasonStoreUnavailable Reason = "store-unavailable"
)

// ChargeResult is the decision returned for every charge attempt.
type ChargeResult struct {
	Allowed   bool   `json:"allowed"`
	Cost      int    `json:"cost"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Reason    Reason `json:"reason,omitempty"`

	// Degraded marks decisions computed against the non-authoritative
	// in-process fallback store.
	Degraded bool `json:"degraded,omitempty"`
}

// UsageRecord stores one identity's consumption for one UTC calendar date.
// Rows are never deleted; a stale date reads as a fresh start.
type UsageRecord struct {
	Identity     string     `gorm:"primaryKey;size:255;not null"`
	Date         string     `gorm:"primaryKey;size:10;not null"`
	Used         int        `gorm:"not null;default:0"`
	LastChargeAt *time.Time `gorm:"column:last_charge_at"`
	CreatedAt    time.Time  `gorm:"not null"`
	UpdatedAt    time.Time  `gorm:"not null"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_limits" }
