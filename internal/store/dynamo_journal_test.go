package store_test

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/marketplace/internal/event"
	"github.com/example/marketplace/internal/store"
)

// fakeDynamo keeps items in memory and answers the journal's key-condition
// query: same partition, sort key strictly greater, ascending.
type fakeDynamo struct {
	items []map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	since := in.ExpressionAttributeValues[":sk"].(*types.AttributeValueMemberS).Value

	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if item["sk"].(*types.AttributeValueMemberS).Value > since {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["sk"].(*types.AttributeValueMemberS).Value < out[j]["sk"].(*types.AttributeValueMemberS).Value
	})
	return &dynamodb.QueryOutput{Items: out}, nil
}

func TestDynamoJournalListSinceOrdersChronologically(t *testing.T) {
	ctx := context.Background()
	journal := store.NewDynamoJournal(&fakeDynamo{}, "event-journal")

	base := time.Date(2026, 1, 2, 3, 4, 5, 111_000_000, time.UTC)
	envs := []event.Envelope{
		{ID: "e1", Type: "TypeA", Data: json.RawMessage(`{"k":"1"}`), Timestamp: base},
		{ID: "e2", Type: "TypeB", Data: json.RawMessage(`{"k":"2"}`), Timestamp: base.Add(time.Second)},
		{ID: "e3", Type: "TypeC", Data: json.RawMessage(`{"k":"3"}`), Timestamp: base.Add(2 * time.Second)},
	}

	// Append out of order; the sort key must restore chronology
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, journal.Append(ctx, envs[i]))
	}

	got, err := journal.ListSince(ctx, base.Add(50*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID)
	assert.Equal(t, "e3", got[1].ID)
	assert.Equal(t, json.RawMessage(`{"k":"2"}`), got[0].Data)
	assert.True(t, got[0].Timestamp.Equal(envs[1].Timestamp))
}
