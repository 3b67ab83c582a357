package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"gate-service/internal/models"
)

// SNSProvider implements SMS sending via AWS SNS
type SNSProvider struct {
	client *sns.Client
	from   string // Sender ID or origination number
	region string
}

// NewSNSProvider creates a new AWS SNS SMS provider
func NewSNSProvider(cfg *ProviderConfig) (*SNSProvider, error) {
	var awsOpts []func(*config.LoadOptions) error

	if cfg.AWSRegion != "" {
		awsOpts = append(awsOpts, config.WithRegion(cfg.AWSRegion))
	}

	// If explicit credentials provided, use them; otherwise fall back to
	// the default chain (environment, shared config, instance role).
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		awsOpts = append(awsOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AWSAccessKeyID,
				cfg.AWSSecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SNSProvider{
		client: sns.NewFromConfig(awsCfg),
		from:   cfg.SNSFrom,
		region: cfg.AWSRegion,
	}, nil
}

// Send sends an SMS via AWS SNS
func (p *SNSProvider) Send(ctx context.Context, message *Message) (*SendResult, error) {
	input := &sns.PublishInput{
		Message:     aws.String(message.Body),
		PhoneNumber: aws.String(message.To),
	}

	input.MessageAttributes = map[string]types.MessageAttributeValue{
		// Transactional delivery priority; these are gate decisions, not marketing
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}

	if p.from != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(p.from),
		}
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return &SendResult{
			ProviderName: "AWS SNS",
			Success:      false,
			Error:        fmt.Errorf("SNS send failed: %w", err),
		}, err
	}

	return &SendResult{
		ProviderID:   aws.ToString(result.MessageId),
		ProviderName: "AWS SNS",
		Success:      true,
		ProviderData: map[string]interface{}{
			"message_id": aws.ToString(result.MessageId),
			"to":         message.To,
			"region":     p.region,
		},
	}, nil
}

// SendDecisionNotice tells the visitor the outcome of their entry request
func (p *SNSProvider) SendDecisionNotice(ctx context.Context, phoneNumber string, status models.RequestStatus) (*SendResult, error) {
	body := "Your visit request was rejected."
	if status == models.StatusApproved {
		body = "Your visit request was approved. You may proceed to the gate."
	}
	return p.Send(ctx, &Message{To: phoneNumber, Body: body})
}

// GetName returns the provider name
func (p *SNSProvider) GetName() string {
	return "AWS SNS"
}

// SupportsChannel returns the supported channel
func (p *SNSProvider) SupportsChannel() string {
	return "SMS"
}
