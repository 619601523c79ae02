package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"admindash/internal/config"
	"admindash/internal/models"
)

var (
	ErrRecipientRequired = errors.New("recipient is required")
	ErrSourceRequired    = errors.New("email source address is not configured")
)

// SendEmailAPI is the slice of the SES client the mailer needs.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SendResult is what SES reports for an accepted message.
type SendResult struct {
	MessageID string `json:"messageId"`
}

// ChangeKind names the user operation an admin notification reports.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Mailer sends plain-text email from a fixed source address.
type Mailer struct {
	client SendEmailAPI
	source string
	admin  string
	logger *zap.Logger
	now    func() time.Time
}

// NewMailer wraps an SES client. admin is the destination of change notices.
func NewMailer(client SendEmailAPI, source, admin string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{
		client: client,
		source: strings.TrimSpace(source),
		admin:  strings.TrimSpace(admin),
		logger: logger,
		now:    time.Now,
	}
}

// NewSESMailer builds the SES client from config. Static keys are used when
// present; otherwise the default AWS credential chain applies.
func NewSESMailer(ctx context.Context, cfg config.EmailConfig, logger *zap.Logger) (*Mailer, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewMailer(ses.NewFromConfig(awsCfg), cfg.Source, cfg.AdminAddress, logger), nil
}

// Send delivers one message. No retries are attempted.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, ErrRecipientRequired
	}
	if m.source == "" {
		return nil, ErrSourceRequired
	}
	out, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Body:    &types.Body{Text: &types.Content{Data: aws.String(body)}},
			Subject: &types.Content{Data: aws.String(subject)},
		},
		Source: aws.String(m.source),
	})
	if err != nil {
		m.logger.Error("send email failed", zap.String("to", to), zap.Error(err))
		return nil, fmt.Errorf("send email: %w", err)
	}
	result := &SendResult{MessageID: aws.ToString(out.MessageId)}
	m.logger.Info("email sent", zap.String("to", to), zap.String("message_id", result.MessageID))
	return result, nil
}

// NotifyUserChange tells the admin address about a created, updated or
// deleted user.
func (m *Mailer) NotifyUserChange(ctx context.Context, user *models.User, kind ChangeKind) error {
	if user == nil {
		return errors.New("user is required")
	}
	if m.admin == "" {
		return ErrRecipientRequired
	}
	subject, body := changeMessage(user, kind, m.now())
	_, err := m.Send(ctx, m.admin, subject, body)
	return err
}

func changeMessage(user *models.User, kind ChangeKind, at time.Time) (string, string) {
	subject := fmt.Sprintf("User %s: %s", kind, user.Name)
	var lead string
	switch kind {
	case ChangeCreated:
		lead = "A new user has been created:"
	default:
		lead = fmt.Sprintf("A user has been %s:", kind)
	}
	phone := user.Phone
	if phone == "" {
		phone = "N/A"
	}
	body := fmt.Sprintf("%s\n\nName: %s\nEmail: %s\nPhone: %s\n\nTime: %s",
		lead, user.Name, user.Email, phone, at.Format(time.RFC1123))
	return subject, body
}
