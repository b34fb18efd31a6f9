package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func TestDistributedLock_AcquireAndRelease(t *testing.T) {
	// Arrange
	client := new(MockAPI)
	lock := NewDistributedLock(client, "locks", time.Minute, nil, nil)

	client.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		pk, ok := in.Item["PK"].(*types.AttributeValueMemberS)
		return ok && pk.Value == "LOCK#companion#companion-1" && aws.ToString(in.TableName) == "locks"
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()
	client.On("DeleteItem", mock.Anything, mock.AnythingOfType("*dynamodb.DeleteItemInput")).
		Return(&dynamodb.DeleteItemOutput{}, nil).Once()

	// Act
	release, err := lock.Lock(context.Background(), "companion-1")
	require.NoError(t, err)
	release()

	// Assert
	client.AssertExpectations(t)
}

func TestDistributedLock_RetriesWhileHeld(t *testing.T) {
	client := new(MockAPI)
	lock := NewDistributedLock(client, "locks", time.Minute, nil, nil)

	client.On("PutItem", mock.Anything, mock.Anything).Return(nil, conditionFailed()).Twice()
	client.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil).Once()

	lockID, err := lock.TryAcquireLock(context.Background(), "companion#companion-1")

	require.NoError(t, err)
	assert.Contains(t, lockID, lock.owner)
	client.AssertNumberOfCalls(t, "PutItem", 3)
}

func TestDistributedLock_GivesUpWhenContextEnds(t *testing.T) {
	client := new(MockAPI)
	lock := NewDistributedLock(client, "locks", time.Minute, nil, nil)
	client.On("PutItem", mock.Anything, mock.Anything).Return(nil, conditionFailed())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_, err := lock.Lock(ctx, "companion-1")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDistributedLock_NonContentionErrorReturnsImmediately(t *testing.T) {
	client := new(MockAPI)
	lock := NewDistributedLock(client, "locks", time.Minute, nil, nil)
	client.On("PutItem", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()

	_, err := lock.TryAcquireLock(context.Background(), "companion#companion-1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)
	client.AssertNumberOfCalls(t, "PutItem", 1)
}

func TestDistributedLock_ReleaseToleratesTakeover(t *testing.T) {
	client := new(MockAPI)
	lock := NewDistributedLock(client, "locks", time.Minute, nil, nil)
	client.On("DeleteItem", mock.Anything, mock.Anything).Return(nil, conditionFailed()).Once()

	err := lock.ReleaseLock(context.Background(), "companion#companion-1", "stale")

	assert.NoError(t, err)
}
