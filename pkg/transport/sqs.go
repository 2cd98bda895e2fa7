package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/theory-cloud/replytheory/pkg/observability"
)

// sqsAPI is the slice of the SQS client the receiver uses.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSReceiver long-polls a queue fed by the AWS two-way-SMS pipeline
// (Pinpoint/SNS inbound topic subscribed to the queue). Each queue message
// carries one inbound SMS as JSON; messages are deleted once decoded.
type SQSReceiver struct {
	api      sqsAPI
	queueURL string
	waitTime time.Duration
	batch    int32
	logger   observability.StructuredLogger
}

var _ Receiver = (*SQSReceiver)(nil)

// SQSOption configures the receiver.
type SQSOption func(*SQSReceiver)

// WithSQSClient substitutes the SQS client, for tests.
func WithSQSClient(api sqsAPI) SQSOption {
	return func(r *SQSReceiver) {
		if api != nil {
			r.api = api
		}
	}
}

// WithWaitTime sets the long-poll duration (capped at SQS's 20s max).
func WithWaitTime(wait time.Duration) SQSOption {
	return func(r *SQSReceiver) {
		if wait >= 0 {
			r.waitTime = wait
		}
	}
}

// WithSQSLogger sets the structured logger.
func WithSQSLogger(logger observability.StructuredLogger) SQSOption {
	return func(r *SQSReceiver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewSQSReceiver builds a receiver on the default AWS config chain unless a
// client is injected.
func NewSQSReceiver(ctx context.Context, region, queueURL string, opts ...SQSOption) (*SQSReceiver, error) {
	r := &SQSReceiver{
		queueURL: queueURL,
		waitTime: 10 * time.Second,
		batch:    10,
		logger:   observability.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.api == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, wrapErr("sqs", "load aws config", err)
		}
		r.api = sqs.NewFromConfig(awsCfg)
	}
	return r, nil
}

// inboundEvent is the two-way-SMS JSON payload, optionally wrapped in an SNS
// notification envelope (Message holding the inner JSON as a string).
type inboundEvent struct {
	Message           string `json:"Message"`
	OriginationNumber string `json:"originationNumber"`
	MessageBody       string `json:"messageBody"`
	InboundMessageID  string `json:"inboundMessageId"`
	Timestamp         string `json:"timestamp"`
}

// Poll receives up to one batch from the queue, decodes each message, and
// deletes what it consumed. Undecodable messages are deleted too — leaving
// them would redeliver the same garbage forever.
func (r *SQSReceiver) Poll(ctx context.Context) ([]InboundMessage, error) {
	wait := int32(r.waitTime / time.Second)
	if wait > 20 {
		wait = 20
	}
	out, err := r.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(r.queueURL),
		MaxNumberOfMessages: r.batch,
		WaitTimeSeconds:     wait,
	})
	if err != nil {
		return nil, wrapErr("sqs", "receive", err)
	}

	inbound := make([]InboundMessage, 0, len(out.Messages))
	for _, raw := range out.Messages {
		msg, ok := decodeInbound(aws.ToString(raw.Body))
		if !ok {
			r.logger.Warn("undecodable queue message dropped", map[string]any{
				"message_id": aws.ToString(raw.MessageId),
			})
		} else {
			if msg.ID == "" {
				msg.ID = "sqs-" + aws.ToString(raw.MessageId)
			}
			inbound = append(inbound, msg)
		}

		if _, err := r.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(r.queueURL),
			ReceiptHandle: raw.ReceiptHandle,
		}); err != nil {
			r.logger.Warn("queue message delete failed", map[string]any{
				"message_id": aws.ToString(raw.MessageId),
				"error":      err.Error(),
			})
		}
	}
	return inbound, nil
}

// decodeInbound unwraps an optional SNS envelope and maps the two-way-SMS
// fields onto an InboundMessage.
func decodeInbound(body string) (InboundMessage, bool) {
	var event inboundEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return InboundMessage{}, false
	}
	// SNS envelope: the real event is the Message string.
	if event.Message != "" && event.OriginationNumber == "" {
		inner := event.Message
		event = inboundEvent{}
		if err := json.Unmarshal([]byte(inner), &event); err != nil {
			return InboundMessage{}, false
		}
	}
	if event.OriginationNumber == "" || event.MessageBody == "" {
		return InboundMessage{}, false
	}

	received := time.Now()
	if event.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
			received = ts
		}
	}
	return InboundMessage{
		ID:         event.InboundMessageID,
		From:       event.OriginationNumber,
		Body:       event.MessageBody,
		ReceivedAt: received,
	}, true
}
