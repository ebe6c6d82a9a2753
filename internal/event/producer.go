package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/logger"
	pkgkafka "github.com/elparchetipk/asiste-app-be-fast/pkg/kafka"
)

// Kafka topic constants for user domain events.
const (
	TopicUserCreated         = "sicora.user.created"
	TopicUserUpdated         = "sicora.user.updated"
	TopicUserDeactivated     = "sicora.user.deactivated"
	TopicUserPasswordChanged = "sicora.user.password_changed"
	TopicEmailNotification   = "sicora.notification.email"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from the user service.
const SourceUserService = "user-service"

// UserData is the payload for user.created and user.updated events.
type UserData struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DocumentNumber string `json:"document_number"`
	DocumentType   string `json:"document_type"`
	Role           string `json:"role"`
	IsActive       bool   `json:"is_active"`
}

// UserDeactivatedData is the payload for a user.deactivated event.
type UserDeactivatedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Reason string `json:"reason,omitempty"`
}

// PasswordChangedData is the payload for a user.password_changed event.
type PasswordChangedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Method string `json:"method"`
}

// Methods reported in PasswordChangedData.
const (
	PasswordChangedByReset  = "reset"
	PasswordChangedByForce  = "force_change"
	PasswordChangedByChange = "change"
)

// EmailNotification asks the notification service to render and deliver an
// email template.
type EmailNotification struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Name     string            `json:"name"`
	Params   map[string]string `json:"params,omitempty"`
}

// Publisher is the transport the producer writes to. *pkgkafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes user domain events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer for the user service.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

func (p *Producer) PublishUserCreated(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserCreated, user.ID, userData(user))
}

func (p *Producer) PublishUserUpdated(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserUpdated, user.ID, userData(user))
}

func (p *Producer) PublishUserDeactivated(ctx context.Context, user *domain.User, reason string) error {
	return p.publish(ctx, TopicUserDeactivated, user.ID, UserDeactivatedData{
		UserID: user.ID,
		Email:  user.Email,
		Reason: reason,
	})
}

func (p *Producer) PublishPasswordChanged(ctx context.Context, user *domain.User, method string) error {
	return p.publish(ctx, TopicUserPasswordChanged, user.ID, PasswordChangedData{
		UserID: user.ID,
		Email:  user.Email,
		Method: method,
	})
}

// PublishEmail publishes an email notification keyed by recipient so that
// messages for one address stay ordered.
func (p *Producer) PublishEmail(ctx context.Context, n EmailNotification) error {
	return p.publish(ctx, TopicEmailNotification, n.To, n)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeUser, SourceUserService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if actor := logger.UserIDFromContext(ctx); actor != "" {
		event.WithActor(actor)
	}

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

func userData(u *domain.User) UserData {
	return UserData{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		DocumentNumber: u.DocumentNumber,
		DocumentType:   u.DocumentType,
		Role:           u.Role,
		IsActive:       u.IsActive,
	}
}

// LogPublisher stands in for Kafka when it is disabled: events are logged
// and dropped.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	p.logger.InfoContext(ctx, "event not published, kafka disabled",
		slog.String("topic", topic),
		slog.String("event_id", event.EventID),
		slog.String("aggregate_id", event.AggregateID),
	)
	return nil
}
