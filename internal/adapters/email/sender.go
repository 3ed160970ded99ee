package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/target/intake-pipeline/config"
	"github.com/target/intake-pipeline/internal/core"
	apperrors "github.com/target/intake-pipeline/internal/errors"
	"github.com/target/intake-pipeline/internal/pkg/awsutil"
	"github.com/target/intake-pipeline/internal/service"
)

const charset = "UTF-8"

// SESAPI is the subset of the SES v2 client used for delivery.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSenderOptions groups dependencies for SESSender.
type SESSenderOptions struct {
	Config   config.EmailConfig // Required: From must be set
	AWS      config.AWSConfig   // Used when Client is nil
	Renderer *Renderer          // Required
	Client   SESAPI             // Optional: built from AWS when nil
	Logger   *slog.Logger       // Optional
}

// SESSender delivers rendered templates through Amazon SES.
type SESSender struct {
	client           SESAPI
	renderer         *Renderer
	from             string
	configurationSet string
	timeout          time.Duration
	logger           *slog.Logger
}

var _ core.EmailSender = (*SESSender)(nil)

// NewSESSender creates an SESSender.
func NewSESSender(ctx context.Context, opts SESSenderOptions) (*SESSender, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if cfg.From == "" {
		return nil, errors.New("email from address is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("email renderer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := opts.Client
	if client == nil {
		awsCfg, err := awsutil.LoadConfig(ctx, opts.AWS)
		if err != nil {
			return nil, err
		}
		endpoint := awsutil.BaseEndpoint(opts.AWS)
		client = sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if endpoint != nil {
				o.BaseEndpoint = endpoint
			}
		})
	}

	return &SESSender{
		client:           client,
		renderer:         opts.Renderer,
		from:             cfg.From,
		configurationSet: cfg.ConfigurationSet,
		timeout:          cfg.Timeout,
		logger:           logger.With("component", "email"),
	}, nil
}

// Send implements core.EmailSender.
func (s *SESSender) Send(ctx context.Context, template core.EmailTemplate, recipient string, data map[string]any) error {
	msg, err := s.renderer.Render(template, data)
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{recipient}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charset)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String(charset)},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("template"), Value: aws.String(string(template))},
		},
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String(charset)}
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.SendEmail(sendCtx, input)
	if err != nil {
		return classifySESError(err)
	}

	s.logger.InfoContext(ctx, "email sent",
		"template", template,
		"recipient", service.RedactEmail(recipient),
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

// classifySESError separates rejections of the message itself from
// throttling and outages.
func classifySESError(err error) error {
	var (
		rejected   *types.MessageRejected
		badRequest *types.BadRequestException
		notFound   *types.NotFoundException
		unverified *types.MailFromDomainNotVerifiedException
	)
	switch {
	case errors.As(err, &rejected),
		errors.As(err, &badRequest),
		errors.As(err, &notFound),
		errors.As(err, &unverified):
		return apperrors.Terminal(err, "ses rejected email")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Transient(err, "ses send timed out")
	default:
		return apperrors.Transient(err, "ses send failed")
	}
}

// LogSender renders templates and logs them instead of sending.
type LogSender struct {
	renderer *Renderer
	logger   *slog.Logger
}

var _ core.EmailSender = (*LogSender)(nil)

// NewLogSender creates a LogSender.
func NewLogSender(renderer *Renderer, logger *slog.Logger) (*LogSender, error) {
	if renderer == nil {
		return nil, errors.New("email renderer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{renderer: renderer, logger: logger.With("component", "email")}, nil
}

// Send implements core.EmailSender.
func (s *LogSender) Send(ctx context.Context, template core.EmailTemplate, recipient string, data map[string]any) error {
	msg, err := s.renderer.Render(template, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", template, err)
	}
	s.logger.InfoContext(ctx, "email delivery disabled, message logged",
		"template", template,
		"recipient", service.RedactEmail(recipient),
		"subject", msg.Subject,
		"html_bytes", len(msg.HTML),
	)
	return nil
}
