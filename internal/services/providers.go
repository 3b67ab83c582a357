package services

import (
	"context"
)

// Provider represents a notification provider interface
type Provider interface {
	Send(ctx context.Context, message *Message) (*SendResult, error)
	GetName() string
	SupportsChannel() string
}

// Message represents a message to be sent
type Message struct {
	To       string
	Subject  string
	Body     string
	Metadata map[string]interface{}
}

// SendResult represents the result of a send operation
type SendResult struct {
	ProviderID   string
	ProviderName string
	Success      bool
	Error        error
	ProviderData map[string]interface{}
}

// ProviderConfig represents provider configuration
type ProviderConfig struct {
	// AWS credentials (for SNS)
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// AWS SNS sender ID or origination number
	SNSFrom string

	// Firebase Cloud Messaging
	FCMProjectID   string
	FCMCredentials string
}

// PushAction is a named action button attached to a push notification
type PushAction struct {
	ID    string
	Title string
}

// PushPayload is a provider-agnostic single-device push notification
type PushPayload struct {
	Token              string
	Title              string
	Body               string
	Tag                string
	Data               map[string]string
	Actions            []PushAction
	RequireInteraction bool
	Link               string
}

// MulticastPayload is a provider-agnostic multi-device push notification
type MulticastPayload struct {
	Tokens             []string
	Title              string
	Body               string
	Tag                string
	Data               map[string]string
	RequireInteraction bool
	Link               string
}

// MulticastResult reports the partitioned outcome of a multicast send
type MulticastResult struct {
	SuccessCount int
	FailureCount int
	FailedTokens []string
}

// PushSender delivers push payloads to devices
type PushSender interface {
	Send(ctx context.Context, payload *PushPayload) (string, error)
	SendMulticast(ctx context.Context, payload *MulticastPayload) (*MulticastResult, error)
	GetName() string
}
