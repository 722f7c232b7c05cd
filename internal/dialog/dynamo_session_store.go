package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// sessionItem is the DynamoDB row shape. The session itself travels as
// a JSON blob; expiresAt feeds the table's TTL attribute.
type sessionItem struct {
	CallerID  string `dynamodbav:"callerId"`
	Session   string `dynamodbav:"session"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt"`
}

// DynamoSessionStore persists dialog sessions in DynamoDB. Expiry rides
// on the table's TTL; Get double-checks it since TTL deletion lags.
type DynamoSessionStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoSessionStore builds a store backed by the provided DynamoDB
// client. The table's TTL attribute must be expiresAt.
func NewDynamoSessionStore(client dynamoAPI, tableName string, ttl time.Duration) *DynamoSessionStore {
	if client == nil {
		panic("dialog: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("dialog: table name cannot be empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DynamoSessionStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *DynamoSessionStore) Get(ctx context.Context, callerID string) (*Session, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"callerId": &types.AttributeValueMemberS{Value: callerID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dialog: failed to load session: %w", err)
	}
	if out.Item == nil {
		return nil, ErrSessionNotFound
	}

	var item sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("dialog: failed to unmarshal session item: %w", err)
	}
	if item.ExpiresAt > 0 && s.now().Unix() > item.ExpiresAt {
		return nil, ErrSessionNotFound
	}

	var session Session
	if err := json.Unmarshal([]byte(item.Session), &session); err != nil {
		return nil, fmt.Errorf("dialog: failed to decode session: %w", err)
	}
	if session.Slots == nil {
		session.Slots = make(SlotBag)
	}
	return &session, nil
}

func (s *DynamoSessionStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("dialog: failed to marshal session: %w", err)
	}
	now := s.now().UTC()
	item, err := attributevalue.MarshalMap(sessionItem{
		CallerID:  session.CallerID,
		Session:   string(data),
		UpdatedAt: now.Format(time.RFC3339Nano),
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("dialog: failed to marshal session item: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dialog: failed to persist session: %w", err)
	}
	return nil
}

func (s *DynamoSessionStore) Delete(ctx context.Context, callerID string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"callerId": &types.AttributeValueMemberS{Value: callerID},
		},
	}); err != nil {
		return fmt.Errorf("dialog: failed to delete session: %w", err)
	}
	return nil
}
