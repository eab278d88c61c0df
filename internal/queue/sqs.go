package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"
)

// queueAttribute is the SQS message attribute that carries the logical queue
// name, since a single SQS queue serves every job type.
const queueAttribute = "queue"

// SQSOptions encapsulates configuration for an SQSQueue.
type SQSOptions struct {
	QueueURL string
	Region   string
	// AccessKeyID and SecretAccessKey are optional. When they're not set, the
	// default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// SQSClient is the subset of the AWS SQS client used here.
type SQSClient interface {
	SendMessage(
		ctx context.Context,
		params *sqs.SendMessageInput,
		optFns ...func(*sqs.Options),
	) (*sqs.SendMessageOutput, error)
}

// SQSQueue is a Queue over a single Amazon SQS queue.
type SQSQueue struct {
	queueURL string
	client   SQSClient
	nowFn    func() time.Time
}

// NewSQSQueue returns an SQSQueue configured by the provided options.
func NewSQSQueue(ctx context.Context, opts SQSOptions) (*SQSQueue, error) {
	if opts.QueueURL == "" {
		return nil, errors.New("an SQS queue URL is required")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(
			loadOpts,
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					opts.AccessKeyID,
					opts.SecretAccessKey,
					"",
				),
			),
		)
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "error loading AWS configuration")
	}
	return newSQSQueue(opts.QueueURL, sqs.NewFromConfig(cfg)), nil
}

func newSQSQueue(queueURL string, client SQSClient) *SQSQueue {
	return &SQSQueue{
		queueURL: queueURL,
		client:   client,
		nowFn:    time.Now,
	}
}

func (s *SQSQueue) Enqueue(
	ctx context.Context,
	queueName string,
	payload interface{},
) (string, error) {
	msg, err := newMessage(queueName, payload, s.nowFn())
	if err != nil {
		return "", err
	}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", errors.Wrap(err, "error marshaling message")
	}
	out, err := s.client.SendMessage(
		ctx,
		&sqs.SendMessageInput{
			QueueUrl:    aws.String(s.queueURL),
			MessageBody: aws.String(string(msgJSON)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				queueAttribute: {
					DataType:    aws.String("String"),
					StringValue: aws.String(queueName),
				},
			},
		},
	)
	if err != nil {
		return "", errors.Wrapf(
			err,
			"error sending %q message to %s",
			queueName,
			s.queueURL,
		)
	}
	return aws.ToString(out.MessageId), nil
}
