package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/example/marketplace/internal/event"
)

// journalPartition is the fixed partition key: the journal is one global
// stream, ordered by timestamp within the single partition.
const journalPartition = "JOURNAL"

// DynamoAPI is the slice of the DynamoDB client the journal uses
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoJournal is the DynamoDB variant of the event journal, for
// deployments without a Postgres instance.
type DynamoJournal struct {
	client    DynamoAPI
	tableName string
}

// dynamoEnvelope is the table item shape. The sort key combines timestamp
// and envelope ID so two envelopes in the same nanosecond still collide on
// distinct keys.
type dynamoEnvelope struct {
	Partition string `dynamodbav:"pk"`
	SortKey   string `dynamodbav:"sk"`
	ID        string `dynamodbav:"id"`
	EventType string `dynamodbav:"event_type"`
	Data      string `dynamodbav:"data"`
	CreatedAt string `dynamodbav:"created_at"`
}

func NewDynamoJournal(client DynamoAPI, tableName string) *DynamoJournal {
	return &DynamoJournal{client: client, tableName: tableName}
}

// NewDynamoClient builds a DynamoDB client from the ambient AWS config
func NewDynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func sortKey(ts time.Time, id string) string {
	return ts.UTC().Format(time.RFC3339Nano) + "#" + id
}

func (j *DynamoJournal) Append(ctx context.Context, env event.Envelope) error {
	item := dynamoEnvelope{
		Partition: journalPartition,
		SortKey:   sortKey(env.Timestamp, env.ID),
		ID:        env.ID,
		EventType: env.Type,
		Data:      string(env.Data),
		CreatedAt: env.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	_, err = j.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(j.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk) AND attribute_not_exists(sk)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put envelope: %w", err)
	}
	return nil
}

func (j *DynamoJournal) ListSince(ctx context.Context, since time.Time) ([]event.Envelope, error) {
	result, err := j.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(j.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND sk > :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: journalPartition},
			":sk": &types.AttributeValueMemberS{Value: since.UTC().Format(time.RFC3339Nano) + "#"},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	envelopes := make([]event.Envelope, 0, len(result.Items))
	for _, item := range result.Items {
		var de dynamoEnvelope
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, de.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp on envelope %s: %w", de.ID, err)
		}
		envelopes = append(envelopes, event.Envelope{
			ID:        de.ID,
			Type:      de.EventType,
			Data:      json.RawMessage(de.Data),
			Timestamp: ts,
		})
	}
	return envelopes, nil
}
