package transport

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/theory-cloud/replytheory/pkg/observability"
)

// snsAPI is the slice of the SNS client the sender uses.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender publishes outbound SMS directly to phone numbers through AWS
// SNS. Messages are marked transactional so carriers prioritize delivery.
type SNSSender struct {
	api      snsAPI
	senderID string
	logger   observability.StructuredLogger
}

var _ Sender = (*SNSSender)(nil)

// SNSOption configures the sender.
type SNSOption func(*SNSSender)

// WithSNSClient substitutes the SNS client, for tests.
func WithSNSClient(api snsAPI) SNSOption {
	return func(s *SNSSender) {
		if api != nil {
			s.api = api
		}
	}
}

// WithSenderID sets the alphanumeric sender id attached to outbound SMS,
// where the destination country supports one.
func WithSenderID(id string) SNSOption {
	return func(s *SNSSender) {
		s.senderID = id
	}
}

// WithSNSLogger sets the structured logger.
func WithSNSLogger(logger observability.StructuredLogger) SNSOption {
	return func(s *SNSSender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSNSSender builds a sender on the default AWS config chain unless a
// client is injected.
func NewSNSSender(ctx context.Context, region string, opts ...SNSOption) (*SNSSender, error) {
	s := &SNSSender{logger: observability.NewNoOpLogger()}
	for _, opt := range opts {
		opt(s)
	}
	if s.api == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, wrapErr("sns", "load aws config", err)
		}
		s.api = sns.NewFromConfig(awsCfg)
	}
	return s, nil
}

// SendMessage publishes one SMS to recipient.
func (s *SNSSender) SendMessage(ctx context.Context, recipient, text string) error {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	out, err := s.api.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(recipient),
		Message:           aws.String(text),
		MessageAttributes: attrs,
	})
	if err != nil {
		return wrapErr("sns", "publish", err)
	}
	s.logger.WithRecipient(recipient).Debug("sms published", map[string]any{
		"message_id": aws.ToString(out.MessageId),
	})
	return nil
}
