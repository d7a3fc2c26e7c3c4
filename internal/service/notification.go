package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"fleetops/internal/domain"
	"fleetops/internal/repository"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationService exposes a user's notification inbox. Notifications are
// immutable apart from the read flag and are never deleted.
type NotificationService struct {
	repo repository.NotificationRepository
	log  logrus.FieldLogger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(repo repository.NotificationRepository, log logrus.FieldLogger) *NotificationService {
	return &NotificationService{repo: repo, log: log}
}

// InboxFilter returns the filter that scopes an inbox to the given identity.
// A fleet manager sees what is addressed to them; a driver likewise.
func InboxFilter(id domain.Identity) domain.NotificationFilter {
	userID := id.UserID
	if id.Role == domain.RoleDriver {
		return domain.NotificationFilter{DriverID: &userID}
	}
	return domain.NotificationFilter{FleetManagerID: &userID}
}

// List returns notifications matching the filter, newest first.
func (s *NotificationService) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultNotificationLimit
	case filter.Limit > maxNotificationLimit:
		filter.Limit = maxNotificationLimit
	}

	out, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// Get returns one notification if it is visible through the filter.
func (s *NotificationService) Get(ctx context.Context, id string, scope domain.NotificationFilter) (*domain.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(n, scope) {
		return nil, repository.ErrNotFound
	}
	return n, nil
}

// MarkRead flips the read flag of one notification and returns it re-read.
func (s *NotificationService) MarkRead(ctx context.Context, id string, scope domain.NotificationFilter) (*domain.Notification, error) {
	if _, err := s.Get(ctx, id, scope); err != nil {
		return nil, err
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return s.repo.GetByID(ctx, id)
}

// MarkAllRead flips the read flag of every unread notification in scope.
func (s *NotificationService) MarkAllRead(ctx context.Context, scope domain.NotificationFilter) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	s.log.WithField("count", n).Debug("notifications marked read")
	return n, nil
}

// UnreadCount counts the unread notifications in scope.
func (s *NotificationService) UnreadCount(ctx context.Context, scope domain.NotificationFilter) (int64, error) {
	n, err := s.repo.CountUnread(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// visible applies the recipient part of a filter to a single notification.
func visible(n *domain.Notification, scope domain.NotificationFilter) bool {
	if scope.FleetManagerID == nil && scope.DriverID == nil {
		return true
	}
	if scope.FleetManagerID != nil && n.FleetManagerID != nil && *n.FleetManagerID == *scope.FleetManagerID {
		return true
	}
	return scope.DriverID != nil && n.DriverID != nil && *n.DriverID == *scope.DriverID
}
