package notifier

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSPublisher is the subset of *sns.Client the sender needs.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender sends transactional SMS through AWS SNS.
type SNSSender struct {
	client SNSPublisher
}

// NewSNSSender resolves credentials through the default AWS chain.
func NewSNSSender(ctx context.Context, region string) (*SNSSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	return &SNSSender{client: sns.NewFromConfig(awsCfg)}, nil
}

func NewSNSSenderWithClient(client SNSPublisher) *SNSSender {
	return &SNSSender{client: client}
}

func (s *SNSSender) Name() string { return "sns" }

func (s *SNSSender) Send(ctx context.Context, to, body string) (string, error) {
	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish SMS: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
