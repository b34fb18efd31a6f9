package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"companionlife/application/ports"
	"companionlife/domain/core/valueobjects"
	"companionlife/pkg/clock"
)

// ErrLockHeld reports that another owner holds an unexpired lock.
var ErrLockHeld = errors.New("lock already held")

// Lock timing defaults.
const (
	DefaultLockDuration  = 30 * time.Second
	initialRetryInterval = 50 * time.Millisecond
	maxRetryInterval     = time.Second
	releaseTimeout       = 5 * time.Second
)

// DistributedLock provides per-companion locking using DynamoDB conditional writes.
// Expired locks are taken over, so a crashed holder blocks others for at most
// the lock duration.
type DistributedLock struct {
	client       API
	tableName    string
	lockDuration time.Duration
	owner        string
	clock        clock.Clock
	logger       *zap.Logger
}

var _ ports.CompanionLocker = (*DistributedLock)(nil)

// NewDistributedLock creates a lock on tableName. Each instance gets its own owner id.
func NewDistributedLock(client API, tableName string, lockDuration time.Duration, clk clock.Clock, logger *zap.Logger) *DistributedLock {
	if lockDuration <= 0 {
		lockDuration = DefaultLockDuration
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributedLock{
		client:       client,
		tableName:    tableName,
		lockDuration: lockDuration,
		owner:        uuid.NewString(),
		clock:        clk,
		logger:       logger,
	}
}

// LockRecord is the stored lock item.
type LockRecord struct {
	PK         string `dynamodbav:"PK"` // LOCK#<resource>
	SK         string `dynamodbav:"SK"` // LOCK
	LockID     string `dynamodbav:"LockID"`
	Owner      string `dynamodbav:"Owner"`
	AcquiredAt string `dynamodbav:"AcquiredAt"`
	ExpiresAt  string `dynamodbav:"ExpiresAt"`
	TTL        int64  `dynamodbav:"TTL"`
}

func lockKey(resource string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "LOCK#" + resource},
		"SK": &types.AttributeValueMemberS{Value: "LOCK"},
	}
}

// Lock implements ports.CompanionLocker. It retries with backoff until the lock
// is taken or ctx is done.
func (dl *DistributedLock) Lock(ctx context.Context, companionID valueobjects.CompanionID) (func(), error) {
	resource := "companion#" + companionID.String()
	lockID, err := dl.TryAcquireLock(ctx, resource)
	if err != nil {
		return nil, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := dl.ReleaseLock(releaseCtx, resource, lockID); err != nil {
			dl.logger.Error("Failed to release lock",
				zap.String("resource", resource),
				zap.String("lockID", lockID),
				zap.Error(err),
			)
		}
	}, nil
}

// AcquireLock makes a single attempt and returns the lock id.
func (dl *DistributedLock) AcquireLock(ctx context.Context, resource string) (string, error) {
	now := dl.clock.Now()
	expiresAt := now.Add(dl.lockDuration)
	record := LockRecord{
		PK:         "LOCK#" + resource,
		SK:         "LOCK",
		LockID:     fmt.Sprintf("%s_%d", dl.owner, now.UnixNano()),
		Owner:      dl.owner,
		AcquiredAt: formatTime(now),
		ExpiresAt:  formatTime(expiresAt),
		TTL:        expiresAt.Unix(),
	}

	cond := expression.Name("PK").AttributeNotExists().
		Or(expression.Name("ExpiresAt").LessThan(expression.Value(formatTime(now))))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return "", fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(dl.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: record.PK},
			"SK":         &types.AttributeValueMemberS{Value: record.SK},
			"LockID":     &types.AttributeValueMemberS{Value: record.LockID},
			"Owner":      &types.AttributeValueMemberS{Value: record.Owner},
			"AcquiredAt": &types.AttributeValueMemberS{Value: record.AcquiredAt},
			"ExpiresAt":  &types.AttributeValueMemberS{Value: record.ExpiresAt},
			"TTL":        &types.AttributeValueMemberN{Value: strconv.FormatInt(record.TTL, 10)},
		},
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return "", ErrLockHeld
		}
		return "", fmt.Errorf("failed to acquire lock: %w", err)
	}

	dl.logger.Debug("Lock acquired",
		zap.String("resource", resource),
		zap.String("lockID", record.LockID),
		zap.Duration("duration", dl.lockDuration),
	)
	return record.LockID, nil
}

// TryAcquireLock retries AcquireLock until it succeeds, fails with a non-contention
// error, or ctx is done.
func (dl *DistributedLock) TryAcquireLock(ctx context.Context, resource string) (string, error) {
	retryInterval := initialRetryInterval
	for {
		lockID, err := dl.AcquireLock(ctx, resource)
		if err == nil {
			return lockID, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return "", err
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		if retryInterval < maxRetryInterval {
			retryInterval = time.Duration(float64(retryInterval) * 1.5)
		}
	}
}

// ReleaseLock deletes the lock if this instance still owns it.
func (dl *DistributedLock) ReleaseLock(ctx context.Context, resource, lockID string) error {
	cond := expression.Name("LockID").Equal(expression.Value(lockID)).
		And(expression.Name("Owner").Equal(expression.Value(dl.owner)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(dl.tableName),
		Key:                       lockKey(resource),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			// Expired and taken over by someone else.
			dl.logger.Warn("Lock already released or owned by someone else",
				zap.String("resource", resource),
				zap.String("lockID", lockID),
			)
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
