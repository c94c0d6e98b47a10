package event

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	pkgkafka "github.com/henriquegoncalvesdev/credipesca/pkg/kafka"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
)

// Kafka topics for user domain events.
var (
	TopicUserRegistered             = pkgkafka.Topic("user", "registered")
	TopicUserPasswordResetRequested = pkgkafka.Topic("user", "password-reset-requested")
	TopicUserPasswordChanged        = pkgkafka.Topic("user", "password-changed")
	TopicUserStatusChanged          = pkgkafka.Topic("user", "status-changed")
)

// Event types carried in the envelope.
const (
	TypeUserRegistered             = "user.registered"
	TypeUserPasswordResetRequested = "user.password_reset_requested"
	TypeUserPasswordChanged        = "user.password_changed"
	TypeUserStatusChanged          = "user.status_changed"
)

// AggregateTypeUser is the aggregate type of every auth event.
const AggregateTypeUser = "user"

// SourceAuthService identifies events originating from this service.
const SourceAuthService = "auth-service"

// Password change methods.
const (
	MethodChange = "change"
	MethodReset  = "reset"
)

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// PasswordResetRequestedData is the payload handed to the mailer. It carries
// the reset token, so the topic must only be readable by the mailer.
type PasswordResetRequestedData struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ResetURL  string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PasswordChangedData is the payload for a user.password_changed event.
type PasswordChangedData struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Method    string    `json:"method"`
	ChangedAt time.Time `json:"changed_at"`
}

// UserStatusChangedData is the payload for a user.status_changed event.
type UserStatusChangedData struct {
	UserID    string `json:"user_id"`
	IsActive  bool   `json:"is_active"`
	ChangedBy string `json:"changed_by"`
}

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes user domain events.
type Producer struct {
	publisher   Publisher
	frontendURL string
	logger      *slog.Logger
	now         func() time.Time
}

// NewProducer creates an event producer. frontendURL is the base of the reset
// link sent to users.
func NewProducer(publisher Publisher, frontendURL string, logger *slog.Logger) *Producer {
	return &Producer{
		publisher:   publisher,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
		now:         time.Now,
	}
}

// ResetURL builds the link the mailer sends for token.
func (p *Producer) ResetURL(token string) string {
	return p.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, TypeUserRegistered, user.ID, UserRegisteredData{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	}, false)
}

// PublishPasswordResetRequested publishes the reset token for the mailer. The
// event is marked sensitive.
func (p *Producer) PublishPasswordResetRequested(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error {
	return p.publish(ctx, TopicUserPasswordResetRequested, TypeUserPasswordResetRequested, user.ID, PasswordResetRequestedData{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Token:     token,
		ResetURL:  p.ResetURL(token),
		ExpiresAt: expiresAt.UTC(),
	}, true)
}

// PublishPasswordChanged publishes a user.password_changed event.
func (p *Producer) PublishPasswordChanged(ctx context.Context, user *domain.User, method string) error {
	return p.publish(ctx, TopicUserPasswordChanged, TypeUserPasswordChanged, user.ID, PasswordChangedData{
		UserID:    user.ID,
		Email:     user.Email,
		Method:    method,
		ChangedAt: p.now().UTC(),
	}, false)
}

// PublishUserStatusChanged publishes a user.status_changed event.
func (p *Producer) PublishUserStatusChanged(ctx context.Context, user *domain.User, changedBy string) error {
	return p.publish(ctx, TopicUserStatusChanged, TypeUserStatusChanged, user.ID, UserStatusChangedData{
		UserID:    user.ID,
		IsActive:  user.IsActive,
		ChangedBy: changedBy,
	}, false)
}

func (p *Producer) publish(ctx context.Context, topic, eventType, userID string, data any, sensitive bool) error {
	evt, err := pkgkafka.NewEvent(ctx, eventType, userID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if sensitive {
		evt.WithMetadata(pkgkafka.MetadataSensitive, "true")
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
	)
	return nil
}
