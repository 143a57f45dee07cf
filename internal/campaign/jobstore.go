package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chatline/chatline/pkg/logging"
)

const jobTTL = 24 * time.Hour

// JobStatus represents the lifecycle of a re-dispatch job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("campaign: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobRecord captures the persisted state of one re-dispatch job, so
// operators can answer "did the follow-up for shipping X go out".
type JobRecord struct {
	JobID              string    `dynamodbav:"jobId" json:"jobId"`
	Status             JobStatus `dynamodbav:"status" json:"status"`
	TenantID           int64     `dynamodbav:"tenantId" json:"tenantId"`
	CampaignShippingID int64     `dynamodbav:"campaignShippingId" json:"campaignShippingId"`
	CampaignID         int64     `dynamodbav:"campaignId" json:"campaignId"`
	Attempts           int       `dynamodbav:"attempts" json:"attempts"`
	ErrorMessage       string    `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt          string    `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt          string    `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt          int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobStore persists job records to DynamoDB. A nil *JobStore is a no-op
// tracker, used when running against in-memory queues.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewJobStore builds a store backed by the provided DynamoDB client.
func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("campaign: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("campaign: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// PutPending inserts a new pending job record. Replays of the same job ID
// are ignored so at-least-once delivery does not reset the record.
func (s *JobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if s == nil {
		return nil
	}
	if job == nil {
		return errors.New("campaign: job cannot be nil")
	}
	now := time.Now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("campaign: failed to marshal job: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return nil
		}
		return fmt.Errorf("campaign: failed to persist job: %w", err)
	}
	return nil
}

// MarkCompleted records a successful dispatch.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, attempts int) error {
	if s == nil {
		return nil
	}
	if jobID == "" {
		return errors.New("campaign: jobID required")
	}
	return s.updateJob(ctx, jobID, JobStatusCompleted, attempts, "")
}

// MarkFailed records a terminally failed dispatch.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, attempts int, errMsg string) error {
	if s == nil {
		return nil
	}
	if jobID == "" {
		return errors.New("campaign: jobID required")
	}
	return s.updateJob(ctx, jobID, JobStatusFailed, attempts, errMsg)
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if s == nil {
		return nil, ErrJobNotFound
	}
	if jobID == "" {
		return nil, errors.New("campaign: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("campaign: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("campaign: failed to decode job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) updateJob(ctx context.Context, jobID string, status JobStatus, attempts int, errMsg string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression: aws.String("SET #status = :status, attempts = :attempts, #error = :error, #updated = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(status)},
			":attempts": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", attempts)},
			":error":    &types.AttributeValueMemberS{Value: errMsg},
			":updated":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("campaign: failed to update job %s: %w", jobID, err)
	}
	return nil
}
