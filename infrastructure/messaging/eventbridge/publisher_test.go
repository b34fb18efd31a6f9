package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"companionlife/domain/events"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

func testEvents(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.BaseEvent{
			AggregateID: fmt.Sprintf("companion-%d", i),
			EventType:   events.TypeRequestCompleted,
			Timestamp:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			Version:     1,
		}
	}
	return out
}

func TestPublisher_ChunksIntoTens(t *testing.T) {
	// Arrange
	client := new(MockAPI)
	publisher := NewPublisher(client, "companion-bus", "", nil)
	var sizes []int
	client.On("PutEvents", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sizes = append(sizes, len(args.Get(1).(*eventbridge.PutEventsInput).Entries))
		}).
		Return(&eventbridge.PutEventsOutput{}, nil)

	// Act
	err := publisher.PublishBatch(context.Background(), testEvents(23))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []int{10, 10, 3}, sizes)
}

func TestPublisher_EntryShape(t *testing.T) {
	client := new(MockAPI)
	publisher := NewPublisher(client, "companion-bus", "custom.source", nil)
	client.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		entry := in.Entries[0]
		var detail map[string]interface{}
		if err := json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail); err != nil {
			return false
		}
		return aws.ToString(entry.EventBusName) == "companion-bus" &&
			aws.ToString(entry.Source) == "custom.source" &&
			aws.ToString(entry.DetailType) == events.TypeRequestCompleted &&
			detail["aggregate_id"] == "companion-0"
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	err := publisher.Publish(context.Background(), testEvents(1)[0])

	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestPublisher_Failures(t *testing.T) {
	tests := []struct {
		name   string
		output *eventbridge.PutEventsOutput
		err    error
	}{
		{name: "transport error", err: errors.New("network down")},
		{
			name: "partial failure",
			output: &eventbridge.PutEventsOutput{
				FailedEntryCount: 1,
				Entries: []types.PutEventsResultEntry{
					{EventId: aws.String("ok")},
					{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("retry")},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockAPI)
			publisher := NewPublisher(client, "companion-bus", "", nil)
			client.On("PutEvents", mock.Anything, mock.Anything).Return(tt.output, tt.err).Once()

			err := publisher.PublishBatch(context.Background(), testEvents(2))

			assert.Error(t, err)
		})
	}
}

func TestPublisher_EmptyBatchIsNoop(t *testing.T) {
	client := new(MockAPI)
	publisher := NewPublisher(client, "companion-bus", "", nil)

	require.NoError(t, publisher.PublishBatch(context.Background(), nil))
	client.AssertNotCalled(t, "PutEvents", mock.Anything, mock.Anything)
}
