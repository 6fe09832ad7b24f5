// Package fcm provides Firebase Cloud Messaging integration for topic management.
package fcm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Config holds FCM client configuration.
type Config struct {
	CredentialsFile string
	ProjectID       string
}

// topicManager is the slice of the messaging client the TopicClient uses.
// Extracted for testing; *messaging.Client satisfies it.
type topicManager interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// TopicClient subscribes and unsubscribes this device's registration token
// to FCM topics. It implements the topics.Client interface.
type TopicClient struct {
	client topicManager

	mu    sync.RWMutex
	token string
}

// New creates a new TopicClient.
// The credentials file should be a Firebase service account JSON file.
func New(ctx context.Context, cfg Config) (*TopicClient, error) {
	if cfg.CredentialsFile == "" {
		return nil, errors.New("firebase credentials file is required")
	}

	var opts []option.ClientOption
	opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))

	firebaseConfig := &firebase.Config{}
	if cfg.ProjectID != "" {
		firebaseConfig.ProjectID = cfg.ProjectID
	}

	app, err := firebase.NewApp(ctx, firebaseConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting messaging client: %w", err)
	}

	return &TopicClient{client: client}, nil
}

// SetToken updates the registration token the client manages. Called on
// login and on every token rotation.
func (c *TopicClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current registration token.
func (c *TopicClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Subscribe subscribes the current token to a topic.
func (c *TopicClient) Subscribe(ctx context.Context, topic string) error {
	token := c.Token()
	if token == "" {
		return errors.New("no registration token set")
	}

	resp, err := c.client.SubscribeToTopic(ctx, []string{token}, topic)
	if err != nil {
		c.handleError(token, topic, err)
		return err
	}
	if resp.FailureCount > 0 {
		return fmt.Errorf("subscribing token %s to %s: %s", truncateToken(token), topic, firstErrorReason(resp))
	}

	log.Printf("INFO: subscribed token %s to topic %s", truncateToken(token), topic)
	return nil
}

// Unsubscribe removes the current token from a topic.
func (c *TopicClient) Unsubscribe(ctx context.Context, topic string) error {
	token := c.Token()
	if token == "" {
		return errors.New("no registration token set")
	}

	resp, err := c.client.UnsubscribeFromTopic(ctx, []string{token}, topic)
	if err != nil {
		c.handleError(token, topic, err)
		return err
	}
	if resp.FailureCount > 0 {
		return fmt.Errorf("unsubscribing token %s from %s: %s", truncateToken(token), topic, firstErrorReason(resp))
	}

	log.Printf("INFO: unsubscribed token %s from topic %s", truncateToken(token), topic)
	return nil
}

// handleError logs FCM errors with appropriate context.
func (c *TopicClient) handleError(token, topic string, err error) {
	tokenSnippet := truncateToken(token)

	if messaging.IsUnregistered(err) {
		log.Printf("WARNING: FCM token %s is no longer valid (NotRegistered)", tokenSnippet)
		return
	}

	if messaging.IsInvalidArgument(err) {
		log.Printf("WARNING: FCM token %s has invalid registration", tokenSnippet)
		return
	}

	log.Printf("ERROR: FCM topic operation failed for token %s on %s: %v", tokenSnippet, topic, err)
}

// firstErrorReason extracts the first per-token error reason from a topic
// management response.
func firstErrorReason(resp *messaging.TopicManagementResponse) string {
	if len(resp.Errors) == 0 {
		return "unknown failure"
	}
	return resp.Errors[0].Reason
}

// truncateToken returns a truncated version of the FCM token for logging.
// FCM tokens are sensitive and should not be fully logged.
func truncateToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:6] + "..." + token[len(token)-6:]
}
