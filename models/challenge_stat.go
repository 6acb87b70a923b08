package models

import "time"

// Challenge outcomes counted per day.
const (
	OutcomeIssued = "issued"
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
)

// ChallengeStat stores aggregated challenge counts per day and outcome.
type ChallengeStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      time.Time `gorm:"index:idx_cs_date_outcome,unique;type:date;not null" json:"date"`
	Outcome   string    `gorm:"index:idx_cs_date_outcome,unique;size:16;not null" json:"outcome"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
