package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"verikey/internal/platform/config"
	"verikey/pkg/platform/circuit"
)

// SESNotifier sends notification email through Amazon SES. A circuit
// breaker absorbs sustained SES outages: while the circuit is open,
// delivery failures are downgraded to debug noise instead of being
// reported on every request.
type SESNotifier struct {
	client     *sesv2.Client
	from       string
	appBaseURL string
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

func NewSESNotifier(ctx context.Context, cfg config.EmailConfig) (*SESNotifier, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SESNotifier{
		client:     sesv2.NewFromConfig(awsCfg),
		from:       cfg.From,
		appBaseURL: strings.TrimSuffix(cfg.AppBaseURL, "/"),
		breaker:    circuit.New("ses"),
		logger:     slog.Default(),
	}, nil
}

// WithLogger replaces the default logger. Returns the notifier for chaining
// during construction.
func (n *SESNotifier) WithLogger(logger *slog.Logger) *SESNotifier {
	n.logger = logger
	return n
}

// RequestCreated sends the "someone wants your information" email.
func (n *SESNotifier) RequestCreated(ctx context.Context, email, requesterName, label string, categories []string) error {
	subject := fmt.Sprintf("%s is requesting your information", requesterName)
	body := fmt.Sprintf(
		"%s sent you an information request on Verikey.\n\n"+
			"Request: %s\n"+
			"Information requested: %s\n\n"+
			"Sign in to respond: %s\n",
		requesterName, label, strings.Join(categories, ", "), n.appBaseURL)

	return n.send(ctx, email, subject, body)
}

func (n *SESNotifier) send(ctx context.Context, to, subject, body string) error {
	_, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		suppress, change := n.breaker.RecordFailure()
		if change.Opened {
			n.logger.Warn("email delivery degraded, suppressing further send errors", "breaker", n.breaker.Name())
		}
		if suppress {
			n.logger.Debug("dropped notification email", "to", to, "error", err)
			return nil
		}
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	if _, change := n.breaker.RecordSuccess(); change.Closed {
		n.logger.Info("email delivery recovered", "breaker", n.breaker.Name())
	}
	return nil
}
