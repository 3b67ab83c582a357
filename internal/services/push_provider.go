package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMProvider implements push notifications via Firebase Cloud Messaging
type FCMProvider struct {
	projectID string
	client    *messaging.Client
}

// NewFCMProvider creates a new FCM push notification provider
func NewFCMProvider(config *ProviderConfig) (*FCMProvider, error) {
	ctx := context.Background()

	// Setup Firebase app options
	var opts []option.ClientOption
	if config.FCMCredentials != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(config.FCMCredentials)))
	}

	// Create Firebase app
	conf := &firebase.Config{
		ProjectID: config.FCMProjectID,
	}
	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firebase app: %w", err)
	}

	// Get messaging client
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get FCM client: %w", err)
	}

	return &FCMProvider{
		projectID: config.FCMProjectID,
		client:    client,
	}, nil
}

// Send sends a push notification to a single device
func (p *FCMProvider) Send(ctx context.Context, payload *PushPayload) (string, error) {
	message := &messaging.Message{
		Token: payload.Token,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data:    payload.Data,
		Android: androidConfig(payload.Tag),
		Webpush: webpushConfig(payload),
	}

	return p.client.Send(ctx, message)
}

// SendMulticast sends a push notification to multiple devices, partitioning
// the outcome per token rather than failing the whole batch.
func (p *FCMProvider) SendMulticast(ctx context.Context, payload *MulticastPayload) (*MulticastResult, error) {
	message := &messaging.MulticastMessage{
		Tokens: payload.Tokens,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data:    payload.Data,
		Android: androidConfig(payload.Tag),
		Webpush: &messaging.WebpushConfig{
			Headers: map[string]string{
				"Urgency": "high",
			},
			Notification: &messaging.WebpushNotification{
				Icon:               "/icons/icon-192.png",
				Badge:              "/icons/icon-192.png",
				Tag:                payload.Tag,
				Renotify:           true,
				RequireInteraction: payload.RequireInteraction,
			},
			FCMOptions: &messaging.WebpushFCMOptions{
				Link: payload.Link,
			},
		},
	}

	response, err := p.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("FCM multicast failed: %w", err)
	}

	result := &MulticastResult{
		SuccessCount: response.SuccessCount,
		FailureCount: response.FailureCount,
	}
	for idx, resp := range response.Responses {
		if !resp.Success && idx < len(payload.Tokens) {
			result.FailedTokens = append(result.FailedTokens, payload.Tokens[idx])
		}
	}
	return result, nil
}

// GetName returns the provider name
func (p *FCMProvider) GetName() string {
	return "FCM"
}

func androidConfig(tag string) *messaging.AndroidConfig {
	return &messaging.AndroidConfig{
		Priority: "high",
		Notification: &messaging.AndroidNotification{
			Tag:          tag,
			ChannelID:    "visitor_requests",
			ClickAction:  "FLUTTER_NOTIFICATION_CLICK",
			DefaultSound: true,
		},
	}
}

func webpushConfig(payload *PushPayload) *messaging.WebpushConfig {
	webpush := &messaging.WebpushConfig{
		Headers: map[string]string{
			"Urgency": "high",
		},
		Notification: &messaging.WebpushNotification{
			Icon:               "/icons/icon-192.png",
			Badge:              "/icons/icon-192.png",
			Tag:                payload.Tag,
			Renotify:           true,
			RequireInteraction: payload.RequireInteraction,
		},
		FCMOptions: &messaging.WebpushFCMOptions{
			Link: payload.Link,
		},
	}
	for _, action := range payload.Actions {
		webpush.Notification.Actions = append(webpush.Notification.Actions, &messaging.WebpushNotificationAction{
			Action: action.ID,
			Title:  action.Title,
		})
	}
	return webpush
}
