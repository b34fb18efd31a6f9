package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestRequest(t *testing.T, requestedAt time.Time) *entities.Request {
	t.Helper()
	due := requestedAt.Add(3 * time.Hour)
	r, err := entities.NewRequest("companion-1", entities.RequestDraft{
		RequestType:     "check_in",
		Title:           "Check in",
		Prompt:          "How was the morning?",
		ConsequenceHint: "Quiet days feel longer.",
		Urgency:         valueobjects.UrgencyGentle,
		DueAt:           &due,
		Context:         valueobjects.NewRequestContext().With("seed", "s").With("requestIndex", 1),
	}, requestedAt)
	require.NoError(t, err)
	return r
}

func TestRequestItem_RoundTrip(t *testing.T) {
	// Arrange
	r := newTestRequest(t, testNow)
	require.NoError(t, r.Snooze(testNow.Add(time.Minute), time.Hour))

	// Act
	av, err := attributevalue.MarshalMap(newRequestItem(r, 4))
	require.NoError(t, err)
	var decoded requestItem
	require.NoError(t, attributevalue.UnmarshalMap(av, &decoded))
	loaded, err := decoded.toRequest()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, r.Snapshot().ID, loaded.ID())
	assert.Equal(t, 4, decoded.Ordinal)
	assert.True(t, loaded.DueAt().Equal(*r.DueAt()))
	assert.Nil(t, loaded.ResolvedAt())
	require.NotNil(t, loaded.ResponseStyle())
	assert.Equal(t, entities.ResponseSnoozed, *loaded.ResponseStyle())
	index, ok := loaded.Context().Int("requestIndex")
	assert.True(t, ok)
	assert.Equal(t, 1, index)
}

func TestSnapshotItem_RoundTrip(t *testing.T) {
	snapshot := entities.NewLifeSnapshot("companion-1", testNow)
	snapshot.LastDayTickDate = "2026-03-14"
	snapshot.LastRequestsGeneratedAt = &testNow
	snapshot.RequestFatigue = 4

	av, err := attributevalue.MarshalMap(newSnapshotItem(snapshot, 7))
	require.NoError(t, err)
	var decoded snapshotItem
	require.NoError(t, attributevalue.UnmarshalMap(av, &decoded))
	loaded, err := decoded.toSnapshot()

	require.NoError(t, err)
	assert.Equal(t, 7, decoded.Version)
	assert.Equal(t, snapshot.LastDayTickDate, loaded.LastDayTickDate)
	assert.Equal(t, 4, loaded.RequestFatigue)
	require.NotNil(t, loaded.LastRequestsGeneratedAt)
	assert.True(t, loaded.LastRequestsGeneratedAt.Equal(testNow))
}

func TestSortRequestItems(t *testing.T) {
	items := []requestItem{
		{RequestID: "b", RequestedAt: formatTime(testNow), Ordinal: 1},
		{RequestID: "c", RequestedAt: formatTime(testNow.Add(time.Second)), Ordinal: 0},
		{RequestID: "a", RequestedAt: formatTime(testNow), Ordinal: 0},
	}

	sortRequestItems(items, false)
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].RequestID, items[1].RequestID, items[2].RequestID})

	sortRequestItems(items, true)
	assert.Equal(t, []string{"c", "b", "a"}, []string{items[0].RequestID, items[1].RequestID, items[2].RequestID})
}

func TestCompanionStore_SaveRequestStatusConditionMapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{
			name: "terminal row",
			err: &types.ConditionalCheckFailedException{Item: map[string]types.AttributeValue{
				"Status": &types.AttributeValueMemberS{Value: "completed"},
			}},
			check: pkgerrors.IsAlreadyResolved,
		},
		{
			name:  "missing row",
			err:   &types.ConditionalCheckFailedException{},
			check: pkgerrors.IsNotFound,
		},
		{
			name:  "deadline",
			err:   context.DeadlineExceeded,
			check: pkgerrors.IsTimeout,
		},
		{
			name:  "service error",
			err:   errors.New("boom"),
			check: func(err error) bool { return pkgerrors.IsType(err, pkgerrors.ErrorTypeDatabase) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			client := new(MockAPI)
			store := NewCompanionStore(client, "companions", clock.NewFake(testNow), nil)
			r := newTestRequest(t, testNow)
			require.NoError(t, r.Complete(testNow))
			client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
				return in.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld &&
					aws.ToString(in.ConditionExpression) != ""
			})).Return(nil, tt.err).Once()

			// Act
			err := store.SaveRequestStatus(context.Background(), ports.StatusUpdateFrom(r))

			// Assert
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}
}

func TestCompanionStore_CreateRequestsIsOneTransaction(t *testing.T) {
	client := new(MockAPI)
	store := NewCompanionStore(client, "companions", clock.NewFake(testNow), nil)
	requests := []*entities.Request{newTestRequest(t, testNow), newTestRequest(t, testNow)}

	client.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		return len(in.TransactItems) == 2 && in.TransactItems[0].Put != nil
	})).Return(nil, &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}).Once()

	err := store.CreateRequests(context.Background(), "companion-1", requests)

	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict))
	client.AssertExpectations(t)
}

func TestCompanionStore_LoadLifeSnapshotMissing(t *testing.T) {
	client := new(MockAPI)
	store := NewCompanionStore(client, "companions", nil, nil)
	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil).Once()

	_, err := store.LoadLifeSnapshot(context.Background(), "companion-1")

	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCompanionStore_UpdateLifeSnapshotRetriesOnVersionConflict(t *testing.T) {
	// Arrange
	client := new(MockAPI)
	store := NewCompanionStore(client, "companions", clock.NewFake(testNow), nil)
	stored, err := attributevalue.MarshalMap(newSnapshotItem(entities.NewLifeSnapshot("companion-1", testNow), 3))
	require.NoError(t, err)

	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: stored}, nil)
	client.On("PutItem", mock.Anything, mock.Anything).Return(nil, conditionFailed()).Once()
	client.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil).Once()

	// Act
	fatigue := 2
	updated, err := store.UpdateLifeSnapshot(context.Background(), "companion-1", entities.LifeSnapshotPatch{RequestFatigue: &fatigue})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, updated.RequestFatigue)
	client.AssertNumberOfCalls(t, "GetItem", 2)
	client.AssertNumberOfCalls(t, "PutItem", 2)
}

func TestCompanionStore_SaveRitualCompletionAlreadyCompleted(t *testing.T) {
	client := new(MockAPI)
	store := NewCompanionStore(client, "companions", clock.NewFake(testNow), nil)
	ritual, err := entities.NewRitual("companion-1", "2026-03-14", entities.RitualDefinition{ID: "tea", Code: "tea"}, valueobjects.UrgencyGentle, testNow)
	require.NoError(t, err)
	require.NoError(t, ritual.Complete(testNow))

	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)
	client.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed")},
			{Code: aws.String("None")},
		},
	}).Once()

	err = store.SaveRitualCompletion(context.Background(), ritual, entities.LifeSnapshotPatch{})

	assert.True(t, pkgerrors.IsAlreadyResolved(err))
}

func TestCompanionStore_SaveDayTickIsOneTransaction(t *testing.T) {
	// Arrange
	client := new(MockAPI)
	store := NewCompanionStore(client, "companions", clock.NewFake(testNow), nil)
	tea, err := entities.NewRitual("companion-1", "2026-03-14", entities.RitualDefinition{ID: "tea", Code: "tea"}, valueobjects.UrgencyGentle, testNow)
	require.NoError(t, err)
	walk, err := entities.NewRitual("companion-1", "2026-03-14", entities.RitualDefinition{ID: "walk", Code: "walk"}, valueobjects.UrgencyGentle, testNow)
	require.NoError(t, err)

	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)
	client.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		return len(in.TransactItems) == 3 && in.TransactItems[2].Put != nil
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

	// Act
	date := "2026-03-14"
	updated, err := store.SaveDayTick(context.Background(), "companion-1", []*entities.Ritual{tea, walk}, entities.LifeSnapshotPatch{LastDayTickDate: &date})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, date, updated.LastDayTickDate)
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "PutItem", mock.Anything, mock.Anything)
}

func TestCompanionStore_SaveDayTickConflicts(t *testing.T) {
	tests := []struct {
		name    string
		reasons []types.CancellationReason
		calls   int
	}{
		{
			name:    "ritual already exists",
			reasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}, {Code: aws.String("None")}},
			calls:   1,
		},
		{
			name:    "snapshot keeps changing",
			reasons: []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")}},
			calls:   snapshotWriteAttempts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			client := new(MockAPI)
			store := NewCompanionStore(client, "companions", clock.NewFake(testNow), nil)
			ritual, err := entities.NewRitual("companion-1", "2026-03-14", entities.RitualDefinition{ID: "tea", Code: "tea"}, valueobjects.UrgencyGentle, testNow)
			require.NoError(t, err)

			client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)
			client.On("TransactWriteItems", mock.Anything, mock.Anything).
				Return(nil, &types.TransactionCanceledException{CancellationReasons: tt.reasons})

			// Act
			_, err = store.SaveDayTick(context.Background(), "companion-1", []*entities.Ritual{ritual}, entities.LifeSnapshotPatch{})

			// Assert
			assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict))
			client.AssertNumberOfCalls(t, "TransactWriteItems", tt.calls)
		})
	}
}

func expressionValues(values map[string]types.AttributeValue) []string {
	var out []string
	for _, v := range values {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			out = append(out, s.Value)
		}
	}
	return out
}

func TestCompanionStore_SnoozedRequestsStayOpen(t *testing.T) {
	t.Run("open request filter", func(t *testing.T) {
		client := new(MockAPI)
		store := NewCompanionStore(client, "companions", clock.NewFake(testNow), nil)
		var captured *dynamodb.QueryInput
		client.On("Query", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			captured = args.Get(1).(*dynamodb.QueryInput)
		}).Return(&dynamodb.QueryOutput{}, nil).Once()

		_, err := store.LoadOpenRequests(context.Background(), "companion-1")

		require.NoError(t, err)
		require.NotNil(t, captured)
		assert.Contains(t, expressionValues(captured.ExpressionAttributeValues), string(valueobjects.RequestSnoozed))
	})

	t.Run("conditional status write", func(t *testing.T) {
		client := new(MockAPI)
		store := NewCompanionStore(client, "companions", clock.NewFake(testNow), nil)
		r := newTestRequest(t, testNow)
		require.NoError(t, r.Accept(testNow))
		var captured *dynamodb.UpdateItemInput
		client.On("UpdateItem", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			captured = args.Get(1).(*dynamodb.UpdateItemInput)
		}).Return(&dynamodb.UpdateItemOutput{}, nil).Once()

		err := store.SaveRequestStatus(context.Background(), ports.StatusUpdateFrom(r))

		require.NoError(t, err)
		require.NotNil(t, captured)
		assert.Contains(t, expressionValues(captured.ExpressionAttributeValues), string(valueobjects.RequestSnoozed))
	})
}
