package transport

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

type fakeSQS struct {
	receiveOut *sqs.ReceiveMessageOutput
	deleted    []string
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return f.receiveOut, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSNSSender_SendMessage(t *testing.T) {
	fake := &fakeSNS{}
	sender, err := NewSNSSender(context.Background(), "us-east-1",
		WithSNSClient(fake), WithSenderID("REPLYBOT"))
	require.NoError(t, err)

	require.NoError(t, sender.SendMessage(context.Background(), "+15551234567", "hello"))

	require.Len(t, fake.inputs, 1)
	input := fake.inputs[0]
	require.Equal(t, "+15551234567", aws.ToString(input.PhoneNumber))
	require.Equal(t, "hello", aws.ToString(input.Message))
	require.Equal(t, "Transactional",
		aws.ToString(input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
	require.Equal(t, "REPLYBOT",
		aws.ToString(input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
}

func TestSQSReceiver_Poll_DecodesAndDeletes(t *testing.T) {
	direct := `{"originationNumber": "+15551234567", "messageBody": "hello direct",
		"inboundMessageId": "in-1", "timestamp": "2026-02-01T14:30:00Z"}`
	enveloped := `{"Type": "Notification", "Message":
		"{\"originationNumber\": \"+15559876543\", \"messageBody\": \"hello enveloped\"}"}`
	garbage := `{{{`

	fake := &fakeSQS{receiveOut: &sqs.ReceiveMessageOutput{
		Messages: []sqstypes.Message{
			{MessageId: aws.String("q1"), ReceiptHandle: aws.String("r1"), Body: aws.String(direct)},
			{MessageId: aws.String("q2"), ReceiptHandle: aws.String("r2"), Body: aws.String(enveloped)},
			{MessageId: aws.String("q3"), ReceiptHandle: aws.String("r3"), Body: aws.String(garbage)},
		},
	}}

	receiver, err := NewSQSReceiver(context.Background(), "us-east-1",
		"https://sqs.us-east-1.amazonaws.com/123/inbound", WithSQSClient(fake))
	require.NoError(t, err)

	inbound, err := receiver.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, inbound, 2)

	require.Equal(t, "in-1", inbound[0].ID)
	require.Equal(t, "+15551234567", inbound[0].From)
	require.Equal(t, "hello direct", inbound[0].Body)
	require.Equal(t, "2026-02-01T14:30:00Z", inbound[0].ReceivedAt.Format("2006-01-02T15:04:05Z"))

	// Envelope unwrapped; missing inbound id falls back to the queue id.
	require.Equal(t, "sqs-q2", inbound[1].ID)
	require.Equal(t, "+15559876543", inbound[1].From)

	// Everything consumed is deleted, including the garbage message.
	require.Equal(t, []string{"r1", "r2", "r3"}, fake.deleted)
}

func TestSQSReceiver_Poll_EmptyQueue(t *testing.T) {
	fake := &fakeSQS{receiveOut: &sqs.ReceiveMessageOutput{}}
	receiver, err := NewSQSReceiver(context.Background(), "", "queue-url", WithSQSClient(fake))
	require.NoError(t, err)

	inbound, err := receiver.Poll(context.Background())
	require.NoError(t, err)
	require.Empty(t, inbound)
}
