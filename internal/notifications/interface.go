package notifications

import "github.com/sellsignal/outreach-bot/internal/models"

// NotificationInterface defines the contract for operator notifications:
// cycle reports, quota warnings, and hold-queue alerts.
type NotificationInterface interface {
	SendReport(report *models.Report) error
	SendAlert(alert *models.Alert) error
}
