package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/simplecaptcha/models"
	"github.com/cppla/simplecaptcha/utils"
)

const (
	defaultStatsDays = 7
	maxStatsDays     = 90
)

// StatsController reports daily challenge counters.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance. db may be nil.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// DayStats is one day of counters.
type DayStats struct {
	Date   string `json:"date"`
	Issued int64  `json:"issued"`
	Passed int64  `json:"passed"`
	Failed int64  `json:"failed"`
}

// GetStats returns counters for the last `days` days (default 7), oldest first.
func (s *StatsController) GetStats(ctx *gin.Context) {
	if s.db == nil {
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeStatsDisabled, "stats are disabled")
		return
	}

	days := defaultStatsDays
	if v := ctx.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "days must be a positive integer")
			return
		}
		days = min(n, maxStatsDays)
	}

	now := time.Now().In(time.Local)
	since := time.Date(now.Year(), now.Month(), now.Day()-(days-1), 0, 0, 0, 0, now.Location())

	var rows []models.ChallengeStat
	if err := s.db.WithContext(ctx.Request.Context()).
		Where("date >= ?", since.Format("2006-01-02")).
		Order("date").
		Find(&rows).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeStatsFailed, "failed to load stats")
		return
	}

	result := make([]DayStats, 0, days)
	index := map[string]int{}
	for _, row := range rows {
		key := row.Date.Format("2006-01-02")
		i, ok := index[key]
		if !ok {
			i = len(result)
			index[key] = i
			result = append(result, DayStats{Date: key})
		}
		switch row.Outcome {
		case models.OutcomeIssued:
			result[i].Issued += row.Count
		case models.OutcomePassed:
			result[i].Passed += row.Count
		case models.OutcomeFailed:
			result[i].Failed += row.Count
		}
	}

	utils.Success(ctx, gin.H{"days": days, "stats": result})
}
