package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/simplecaptcha/models"
	"github.com/cppla/simplecaptcha/utils"
)

const outcomeKey = "captcha_outcome"

// SetOutcome tags the request with a challenge outcome for the stats recorder.
func SetOutcome(c *gin.Context, outcome string) {
	c.Set(outcomeKey, outcome)
}

// ChallengeStatsRecorder counts issued, passed and failed challenges per day.
// A nil db disables recording.
func ChallengeStatsRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if db == nil {
			return
		}
		outcome := c.GetString(outcomeKey)
		if outcome == "" {
			return
		}

		// Use local midnight to align with DATE column
		now := time.Now().In(time.Local)
		localMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

		// Atomic upsert to avoid duplicate key errors under concurrency
		err := db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "outcome"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": now}),
		}).Create(&models.ChallengeStat{Date: localMidnight, Outcome: outcome, Count: 1}).Error
		if err != nil {
			utils.Logger.Warn("record challenge stat failed", zap.Error(err))
		}
	}
}
