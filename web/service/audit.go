package service

import (
	"time"

	"github.com/modix-panel/modix/database"
	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/util/common"
)

// Audit outcomes. Undeterminable marks resolutions that failed on the
// store rather than on policy; it is never folded into a plain deny.
const (
	OutcomeAllow          = "allow"
	OutcomeDeny           = "deny"
	OutcomeUndeterminable = "undeterminable"
	OutcomeSuccess        = "success"
)

// AuditService appends authorization decisions and privileged actions
// to the audit sink.
type AuditService struct{}

// Record appends one audit entry. Failures are logged, never surfaced:
// an audit write must not fail the guarded action after the decision
// was made.
func (s *AuditService) Record(subject, action, workload, outcome, reason string) {
	db := database.GetDB()

	entry := model.AuditLog{
		Timestamp: time.Now(),
		Subject:   subject,
		Action:    action,
		Workload:  workload,
		Outcome:   outcome,
		Reason:    reason,
	}
	if err := db.Create(&entry).Error; err != nil {
		logger.Warningf("audit append failed: subject=%s action=%s: %v", subject, action, err)
	}
}

// GetRecent returns the newest entries for operational inspection.
func (s *AuditService) GetRecent(limit int) ([]model.AuditLog, error) {
	db := database.GetDB()

	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var entries []model.AuditLog
	err := db.Order("id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "list audit entries")
	}
	return entries, nil
}

// CleanOldLogs removes entries older than the retention window.
func (s *AuditService) CleanOldLogs(days int) error {
	if days <= 0 {
		return common.New(common.KindInvalidArgument, "retention days must be positive")
	}

	db := database.GetDB()
	cutoff := time.Now().AddDate(0, 0, -days)

	result := db.Where("timestamp < ?", cutoff).Delete(&model.AuditLog{})
	if result.Error != nil {
		return common.Wrap(common.KindInfrastructure, result.Error, "clean audit entries")
	}
	if result.RowsAffected > 0 {
		logger.Infof("cleaned %d audit entries older than %d days", result.RowsAffected, days)
	}
	return nil
}
