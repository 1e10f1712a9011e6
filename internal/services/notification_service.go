package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dogparkjp/parkgate/internal/database"
	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/google/uuid"
)

type NotificationService struct {
	emailService *EmailService
}

func NewNotificationService(emailService *EmailService) *NotificationService {
	return &NotificationService{
		emailService: emailService,
	}
}

// CreateNotification creates a new in-app notification
func (s *NotificationService) CreateNotification(
	ctx context.Context,
	userID int64,
	accessLogID *uuid.UUID,
	notifType string,
	title string,
	message string,
	metadata *models.NotificationMetadata,
) (*models.Notification, error) {
	// Marshal metadata
	metadataJSON, _ := json.Marshal(metadata)
	if metadata == nil {
		metadataJSON = []byte("{}")
	}

	notification := &models.Notification{
		UserID:      userID,
		AccessLogID: accessLogID,
		Type:        notifType,
		Title:       title,
		Message:     message,
		Metadata:    metadataJSON,
	}

	_, err := database.DB.NewInsert().Model(notification).Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return notification, nil
}

// NotifyAccessEvent handles notification when an unlock event lands: entry
// confirmation when the record moves to entered, exit confirmation with the
// stay duration when it moves to exited.
func (s *NotificationService) NotifyAccessEvent(accessLog *models.AccessLog, lock *models.SmartLock) error {
	ctx := context.Background()

	// Fetch user to get notification preferences
	user := new(models.User)
	err := database.DB.NewSelect().
		Model(user).
		Where("id = ?", accessLog.UserID).
		Scan(ctx)
	if err != nil {
		log.Printf("[NotificationService] Failed to fetch user %d: %v", accessLog.UserID, err)
		return err
	}

	title, message, notifType := s.generateAccessEventContent(accessLog, lock)
	if notifType == "" {
		return nil
	}

	metadata := &models.NotificationMetadata{
		LockName: lock.Name,
		ParkName: lock.ParkName,
		PinType:  accessLog.PinType,
	}
	if accessLog.UsedAt != nil {
		metadata.UsedAt = accessLog.UsedAt.Format(time.RFC3339)
	}
	if accessLog.DurationMs != nil {
		metadata.DurationMs = *accessLog.DurationMs
	}

	// 1. Always create in-app notification
	_, err = s.CreateNotification(ctx, user.ID, &accessLog.ID, notifType, title, message, metadata)
	if err != nil {
		log.Printf("[NotificationService] Failed to create in-app notification: %v", err)
	}

	// 2. Send email if user has enabled email notifications
	if user.NotifyEmail && s.emailService != nil {
		go s.sendEmailNotification(user.Email, title, message)
	}

	return nil
}

// generateAccessEventContent creates title and message for an unlock event
func (s *NotificationService) generateAccessEventContent(accessLog *models.AccessLog, lock *models.SmartLock) (string, string, string) {
	parkLabel := lock.ParkName
	if parkLabel == "" {
		parkLabel = lock.Name
	}

	switch accessLog.Status {
	case models.StatusEntered:
		title := "入場しました"
		message := fmt.Sprintf("%sに入場しました。退場の際は退場PINを発行してください。", parkLabel)
		return title, message, models.NotificationTypeEntry

	case models.StatusExited:
		title := "退場しました"
		durationInfo := ""
		if accessLog.DurationMs != nil {
			duration := time.Duration(*accessLog.DurationMs) * time.Millisecond
			durationInfo = fmt.Sprintf(" 滞在時間: %s。", formatDuration(duration))
		}
		message := fmt.Sprintf("%sから退場しました。%s", parkLabel, durationInfo)
		return title, message, models.NotificationTypeExit

	default:
		return "", "", ""
	}
}

// NotifyPinExpired creates an in-app notification when an unused PIN was
// cleaned up at the vendor after its validity window
func (s *NotificationService) NotifyPinExpired(
	userID int64,
	accessLogID uuid.UUID,
	lockName string,
	pinType string,
	deliveryError string,
) error {
	ctx := context.Background()

	title := "PINの有効期限が切れました"
	message := fmt.Sprintf("%sのPINコードは使用されないまま有効期限が切れました。必要な場合は再発行してください。", lockName)

	status := "cleaned"
	if deliveryError != "" {
		status = "failed"
	}
	metadata := &models.NotificationMetadata{
		LockName:       lockName,
		PinType:        pinType,
		DeliveryStatus: status,
		DeliveryError:  deliveryError,
	}

	_, err := s.CreateNotification(ctx, userID, &accessLogID, models.NotificationTypePinExpired, title, message, metadata)
	if err != nil {
		log.Printf("[NotificationService] Failed to create expiry notification: %v", err)
		return err
	}

	return nil
}

// sendEmailNotification sends email notification asynchronously
func (s *NotificationService) sendEmailNotification(email, title, message string) {
	htmlBody := fmt.Sprintf(`
		<h2 style="color: #1f2937; margin-bottom: 16px;">%s</h2>
		<p style="color: #374151; font-size: 16px; margin-bottom: 24px;">%s</p>
	`, title, message)

	subject := fmt.Sprintf("[ParkGate] %s", title)

	err := s.emailService.SendEmail([]string{email}, subject, htmlBody)
	if err != nil {
		log.Printf("[NotificationService] Failed to send email to %s: %v", email, err)
	} else {
		log.Printf("[NotificationService] Email sent to %s: %s", email, title)
	}
}

// GetUserNotifications returns access event notifications for a user, newest
// first. With unreadOnly set, only notifications not yet seen are returned.
func (s *NotificationService) GetUserNotifications(ctx context.Context, userID int64, limit int, offset int, unreadOnly bool) ([]models.Notification, int, error) {
	var notifications []models.Notification

	query := database.DB.NewSelect().
		Model(&notifications).
		Where("user_id = ?", userID).
		Order("created_at DESC")

	if unreadOnly {
		query = query.Where("is_read = false")
	}

	// Get total count
	total, err := query.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	// Apply pagination
	err = query.Limit(limit).Offset(offset).Scan(ctx)
	if err != nil {
		return nil, 0, err
	}

	return notifications, total, nil
}

// GetUnreadCount returns the count of unread notifications
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	count, err := database.DB.NewSelect().
		Model((*models.Notification)(nil)).
		Where("user_id = ?", userID).
		Where("is_read = false").
		Count(ctx)
	return count, err
}

// MarkAsRead marks a notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID int64, userID int64) error {
	now := time.Now()
	_, err := database.DB.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("is_read = true").
		Set("read_at = ?", now).
		Where("id = ?", notificationID).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

// MarkAllAsRead marks all notifications as read for a user
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID int64) error {
	now := time.Now()
	_, err := database.DB.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("is_read = true").
		Set("read_at = ?", now).
		Where("user_id = ?", userID).
		Where("is_read = false").
		Exec(ctx)
	return err
}

// Helper function to format duration
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	if h > 0 {
		return fmt.Sprintf("%d時間%d分", h, m)
	}
	return fmt.Sprintf("%d分", m)
}
