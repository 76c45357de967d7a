package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const EventStageAdvanced = "STAGE_ADVANCED"

// Publisher is the part of the SNS API used here.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// StageEvent announces that a user moved to a later advising stage.
type StageEvent struct {
	Type         string    `json:"type"`
	UserID       string    `json:"userId"`
	FromStage    int       `json:"fromStage"`
	ToStage      int       `json:"toStage"`
	UniversityID string    `json:"universityId,omitempty"`
	TasksCreated int       `json:"tasksCreated"`
	OccurredAt   time.Time `json:"occurredAt"`
}

type SNSClient struct {
	client   Publisher
	topicARN string
}

func NewSNSClient(ctx context.Context, region, topicARN string) (*SNSClient, error) {
	if topicARN == "" {
		return nil, errors.New("sns topic arn is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSClientWithPublisher(sns.NewFromConfig(cfg), topicARN), nil
}

func NewSNSClientWithPublisher(p Publisher, topicARN string) *SNSClient {
	return &SNSClient{client: p, topicARN: topicARN}
}

// PublishStageAdvanced sends ev to the configured topic with its type as a
// message attribute so subscribers can filter.
func (s *SNSClient) PublishStageAdvanced(ctx context.Context, ev StageEvent) error {
	ev.Type = EventStageAdvanced
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode stage event: %w", err)
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(s.topicARN),
		Message:  awssdk.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {DataType: awssdk.String("String"), StringValue: awssdk.String(EventStageAdvanced)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish stage event: %w", err)
	}
	return nil
}
