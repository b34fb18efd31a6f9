package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"
)

// snapshotWriteAttempts bounds optimistic retries on the snapshot version.
const snapshotWriteAttempts = 3

// CompanionStore implements ports.CompanionStore on a single DynamoDB table.
type CompanionStore struct {
	client    API
	tableName string
	clock     clock.Clock
	logger    *zap.Logger
}

var _ ports.CompanionStore = (*CompanionStore)(nil)

// NewCompanionStore creates a store backed by tableName.
func NewCompanionStore(client API, tableName string, clk clock.Clock, logger *zap.Logger) *CompanionStore {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanionStore{client: client, tableName: tableName, clock: clk, logger: logger}
}

func (s *CompanionStore) key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func (s *CompanionStore) LoadLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID) (entities.LifeSnapshot, error) {
	item, _, err := s.getSnapshot(ctx, companionID)
	if err != nil {
		return entities.LifeSnapshot{}, dbError("LoadLifeSnapshot", err)
	}
	if item == nil {
		return entities.LifeSnapshot{}, pkgerrors.NewNotFoundError("life snapshot", companionID.String())
	}
	snapshot, err := item.toSnapshot()
	if err != nil {
		return entities.LifeSnapshot{}, dbError("LoadLifeSnapshot", err)
	}
	return snapshot, nil
}

// getSnapshot returns the stored item and its version, or nil when absent.
func (s *CompanionStore) getSnapshot(ctx context.Context, companionID valueobjects.CompanionID) (*snapshotItem, int, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(companionPK(companionID), snapshotSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, 0, err
	}
	if out.Item == nil {
		return nil, 0, nil
	}
	var item snapshotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal life snapshot: %w", err)
	}
	return &item, item.Version, nil
}

func (s *CompanionStore) LoadOpenRequests(ctx context.Context, companionID valueobjects.CompanionID) ([]*entities.Request, error) {
	filter := expression.Name("Status").In(
		expression.Value(string(valueobjects.RequestPending)),
		expression.Value(string(valueobjects.RequestAccepted)),
		expression.Value(string(valueobjects.RequestSnoozed)),
	)
	items, err := s.queryRequests(ctx, companionID, &filter)
	if err != nil {
		return nil, dbError("LoadOpenRequests", err)
	}
	sortRequestItems(items, false)
	return toRequests(items)
}

func (s *CompanionStore) LoadRequest(ctx context.Context, companionID valueobjects.CompanionID, requestID valueobjects.RequestID) (*entities.Request, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(companionPK(companionID), requestSK(requestID)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, dbError("LoadRequest", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("request", requestID.String())
	}
	var item requestItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, dbError("LoadRequest", err)
	}
	r, err := item.toRequest()
	if err != nil {
		return nil, dbError("LoadRequest", err)
	}
	return r, nil
}

func (s *CompanionStore) LoadRituals(ctx context.Context, companionID valueobjects.CompanionID, date string) ([]*entities.Ritual, error) {
	filter := expression.Name("RitualDate").Equal(expression.Value(date))
	raw, err := s.query(ctx, companionID, ritualPrefix, &filter)
	if err != nil {
		return nil, dbError("LoadRituals", err)
	}

	items := make([]ritualItem, 0, len(raw))
	for _, av := range raw {
		var item ritualItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, dbError("LoadRituals", err)
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt < items[j].CreatedAt })

	out := make([]*entities.Ritual, 0, len(items))
	for _, item := range items {
		r, err := item.toRitual()
		if err != nil {
			return nil, dbError("LoadRituals", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *CompanionStore) LoadRitual(ctx context.Context, companionID valueobjects.CompanionID, ritualID valueobjects.RitualID) (*entities.Ritual, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(companionPK(companionID), ritualSK(ritualID)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, dbError("LoadRitual", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("ritual", ritualID.String())
	}
	var item ritualItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, dbError("LoadRitual", err)
	}
	r, err := item.toRitual()
	if err != nil {
		return nil, dbError("LoadRitual", err)
	}
	return r, nil
}

// SaveRequestStatus writes the lifecycle change only while the stored row is open.
func (s *CompanionStore) SaveRequestStatus(ctx context.Context, update ports.RequestStatusUpdate) error {
	upd := expression.Set(expression.Name("Status"), expression.Value(string(update.Status)))
	if update.ResponseStyle != nil {
		upd = upd.Set(expression.Name("ResponseStyle"), expression.Value(*update.ResponseStyle))
	}
	if update.DueAt != nil {
		upd = upd.Set(expression.Name("DueAt"), expression.Value(formatTime(*update.DueAt)))
	} else {
		upd = upd.Remove(expression.Name("DueAt"))
	}
	if update.ResolvedAt != nil {
		upd = upd.Set(expression.Name("ResolvedAt"), expression.Value(formatTime(*update.ResolvedAt)))
	}

	cond := expression.Name("PK").AttributeExists().And(
		expression.Name("Status").In(
			expression.Value(string(valueobjects.RequestPending)),
			expression.Value(string(valueobjects.RequestAccepted)),
			expression.Value(string(valueobjects.RequestSnoozed)),
		),
	)
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.tableName),
		Key:                                 s.key(companionPK(update.CompanionID), requestSK(update.RequestID)),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return dbError("SaveRequestStatus", err)
	}
	if len(ccf.Item) == 0 {
		return pkgerrors.NewNotFoundError("request", update.RequestID.String())
	}
	status := ""
	if attr, ok := ccf.Item["Status"].(*types.AttributeValueMemberS); ok {
		status = attr.Value
	}
	s.logger.Debug("Conditional status write rejected",
		zap.String("companion_id", update.CompanionID.String()),
		zap.String("request_id", update.RequestID.String()),
		zap.String("stored_status", status),
	)
	return pkgerrors.NewAlreadyResolvedError("request", update.RequestID.String(), status)
}

// CreateRequests writes every request in one transaction.
func (s *CompanionStore) CreateRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request) error {
	if len(requests) == 0 {
		return nil
	}
	puts, err := s.requestPuts(companionID, requests, maxTransactItems)
	if err != nil {
		return err
	}
	return s.transact(ctx, "CreateRequests", puts, "request")
}

func (s *CompanionStore) requestPuts(companionID valueobjects.CompanionID, requests []*entities.Request, limit int) ([]types.TransactWriteItem, error) {
	if len(requests) > limit {
		return nil, pkgerrors.NewValidationError("too many requests in one batch")
	}
	puts := make([]types.TransactWriteItem, 0, len(requests)+1)
	for i, r := range requests {
		if r.CompanionID() != companionID {
			return nil, pkgerrors.NewValidationError("request belongs to another companion")
		}
		put, err := s.newPut(newRequestItem(r, i))
		if err != nil {
			return nil, dbError("CreateRequests", err)
		}
		puts = append(puts, put)
	}
	return puts, nil
}

// CreateRituals writes every ritual in one transaction.
func (s *CompanionStore) CreateRituals(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual) error {
	if len(rituals) == 0 {
		return nil
	}
	puts, err := s.ritualPuts(companionID, rituals, maxTransactItems)
	if err != nil {
		return err
	}
	return s.transact(ctx, "CreateRituals", puts, "ritual")
}

func (s *CompanionStore) ritualPuts(companionID valueobjects.CompanionID, rituals []*entities.Ritual, limit int) ([]types.TransactWriteItem, error) {
	if len(rituals) > limit {
		return nil, pkgerrors.NewValidationError("too many rituals in one batch")
	}
	puts := make([]types.TransactWriteItem, 0, len(rituals)+1)
	for _, r := range rituals {
		if r.CompanionID() != companionID {
			return nil, pkgerrors.NewValidationError("ritual belongs to another companion")
		}
		put, err := s.newPut(newRitualItem(r))
		if err != nil {
			return nil, dbError("CreateRituals", err)
		}
		puts = append(puts, put)
	}
	return puts, nil
}

// SaveDayTick writes the day's rituals and the versioned snapshot in one transaction.
func (s *CompanionStore) SaveDayTick(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	puts, err := s.ritualPuts(companionID, rituals, maxTransactItems-1)
	if err != nil {
		return entities.LifeSnapshot{}, err
	}
	return s.transactWithSnapshot(ctx, "SaveDayTick", companionID, puts, "ritual", patch)
}

// SaveGeneratedRequests writes a generation batch and the versioned snapshot in one transaction.
func (s *CompanionStore) SaveGeneratedRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	puts, err := s.requestPuts(companionID, requests, maxTransactItems-1)
	if err != nil {
		return entities.LifeSnapshot{}, err
	}
	return s.transactWithSnapshot(ctx, "SaveGeneratedRequests", companionID, puts, "request", patch)
}

// transactWithSnapshot appends the snapshot write to puts and commits them
// together. A concurrent snapshot change is retried like UpdateLifeSnapshot.
func (s *CompanionStore) transactWithSnapshot(
	ctx context.Context,
	operation string,
	companionID valueobjects.CompanionID,
	puts []types.TransactWriteItem,
	resource string,
	patch entities.LifeSnapshotPatch,
) (entities.LifeSnapshot, error) {
	for attempt := 1; ; attempt++ {
		snapshotWrite, updated, err := s.snapshotPut(ctx, companionID, patch)
		if err != nil {
			return entities.LifeSnapshot{}, dbError(operation, err)
		}
		items := append(puts[:len(puts):len(puts)], types.TransactWriteItem{Put: snapshotWrite})

		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
		if err == nil {
			return updated, nil
		}

		codes := cancellationCodes(err)
		for _, code := range codes[:min(len(codes), len(puts))] {
			if code == "ConditionalCheckFailed" {
				return entities.LifeSnapshot{}, pkgerrors.NewConflictError(resource + " already exists")
			}
		}
		if len(codes) != len(items) || codes[len(codes)-1] != "ConditionalCheckFailed" {
			return entities.LifeSnapshot{}, dbError(operation, err)
		}
		if attempt == snapshotWriteAttempts {
			return entities.LifeSnapshot{}, pkgerrors.NewConflictError("life snapshot changed concurrently")
		}
		s.logger.Debug("Retrying snapshot transaction",
			zap.String("operation", operation),
			zap.String("companion_id", companionID.String()),
			zap.Int("attempt", attempt),
		)
	}
}

func (s *CompanionStore) newPut(item interface{}) (types.TransactWriteItem, error) {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to marshal item: %w", err)
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to build expression: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 aws.String(s.tableName),
			Item:                      av,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

func (s *CompanionStore) transact(ctx context.Context, operation string, items []types.TransactWriteItem, resource string) error {
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}
	for _, code := range cancellationCodes(err) {
		if code == "ConditionalCheckFailed" {
			return pkgerrors.NewConflictError(resource + " already exists")
		}
	}
	return dbError(operation, err)
}

// UpdateLifeSnapshot applies patch with an optimistic version check, creating
// the neutral snapshot when none exists.
func (s *CompanionStore) UpdateLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	for attempt := 1; ; attempt++ {
		put, updated, err := s.snapshotPut(ctx, companionID, patch)
		if err != nil {
			return entities.LifeSnapshot{}, dbError("UpdateLifeSnapshot", err)
		}

		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 put.TableName,
			Item:                      put.Item,
			ConditionExpression:       put.ConditionExpression,
			ExpressionAttributeNames:  put.ExpressionAttributeNames,
			ExpressionAttributeValues: put.ExpressionAttributeValues,
		})
		if err == nil {
			return updated, nil
		}
		if !isConditionFailed(err) {
			return entities.LifeSnapshot{}, dbError("UpdateLifeSnapshot", err)
		}
		if attempt == snapshotWriteAttempts {
			return entities.LifeSnapshot{}, pkgerrors.NewConflictError("life snapshot changed concurrently")
		}
		s.logger.Debug("Retrying life snapshot write",
			zap.String("companion_id", companionID.String()),
			zap.Int("attempt", attempt),
		)
	}
}

// snapshotPut loads the current snapshot and builds the versioned write for patch.
func (s *CompanionStore) snapshotPut(ctx context.Context, companionID valueobjects.CompanionID, patch entities.LifeSnapshotPatch) (*types.Put, entities.LifeSnapshot, error) {
	now := s.clock.Now()
	stored, version, err := s.getSnapshot(ctx, companionID)
	if err != nil {
		return nil, entities.LifeSnapshot{}, err
	}

	current := entities.NewLifeSnapshot(companionID, now)
	cond := expression.Name("PK").AttributeNotExists()
	if stored != nil {
		if current, err = stored.toSnapshot(); err != nil {
			return nil, entities.LifeSnapshot{}, err
		}
		cond = expression.Name("Version").Equal(expression.Value(version))
	}

	updated := current.Apply(patch, now)
	av, err := attributevalue.MarshalMap(newSnapshotItem(updated, version+1))
	if err != nil {
		return nil, entities.LifeSnapshot{}, fmt.Errorf("failed to marshal life snapshot: %w", err)
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return nil, entities.LifeSnapshot{}, fmt.Errorf("failed to build expression: %w", err)
	}
	return &types.Put{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, updated, nil
}

func (s *CompanionStore) LoadResolvedRequestsHistory(ctx context.Context, companionID valueobjects.CompanionID, since time.Time, limit int) ([]*entities.Request, error) {
	filter := expression.Name("RequestedAt").GreaterThanEqual(expression.Value(formatTime(since)))
	items, err := s.queryRequests(ctx, companionID, &filter)
	if err != nil {
		return nil, dbError("LoadResolvedRequestsHistory", err)
	}
	sortRequestItems(items, true)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return toRequests(items)
}

// SaveRitualCompletion marks the ritual completed and writes the snapshot in
// one transaction.
func (s *CompanionStore) SaveRitualCompletion(ctx context.Context, ritual *entities.Ritual, patch entities.LifeSnapshotPatch) error {
	companionID := ritual.CompanionID()
	snapshotWrite, _, err := s.snapshotPut(ctx, companionID, patch)
	if err != nil {
		return dbError("SaveRitualCompletion", err)
	}

	upd := expression.Set(expression.Name("Status"), expression.Value(string(valueobjects.RitualCompleted))).
		Set(expression.Name("CompletedAt"), expression.Value(formatTimePtr(ritual.CompletedAt())))
	cond := expression.Name("Status").Equal(expression.Value(string(valueobjects.RitualPending)))
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 aws.String(s.tableName),
				Key:                       s.key(companionPK(companionID), ritualSK(ritual.ID())),
				UpdateExpression:          expr.Update(),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			}},
			{Put: snapshotWrite},
		},
	})
	if err == nil {
		return nil
	}

	codes := cancellationCodes(err)
	switch {
	case len(codes) > 0 && codes[0] == "ConditionalCheckFailed":
		return pkgerrors.NewAlreadyResolvedError("ritual", ritual.ID().String(), string(valueobjects.RitualCompleted))
	case len(codes) > 1 && codes[1] == "ConditionalCheckFailed":
		return pkgerrors.NewConflictError("life snapshot changed concurrently")
	}
	return dbError("SaveRitualCompletion", err)
}

func (s *CompanionStore) queryRequests(ctx context.Context, companionID valueobjects.CompanionID, filter *expression.ConditionBuilder) ([]requestItem, error) {
	raw, err := s.query(ctx, companionID, requestPrefix, filter)
	if err != nil {
		return nil, err
	}
	items := make([]requestItem, 0, len(raw))
	for _, av := range raw {
		var item requestItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// query pages through every item under the companion whose SK starts with prefix.
func (s *CompanionStore) query(ctx context.Context, companionID valueobjects.CompanionID, prefix string, filter *expression.ConditionBuilder) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(companionPK(companionID))).
		And(expression.Key("SK").BeginsWith(prefix))
	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if filter != nil {
		builder = builder.WithFilter(*filter)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// sortRequestItems orders by RequestedAt then Ordinal. Timestamps are fixed
// width so string order is time order.
func sortRequestItems(items []requestItem, newestFirst bool) {
	sort.SliceStable(items, func(a, b int) bool {
		x, y := items[a], items[b]
		if newestFirst {
			x, y = y, x
		}
		if x.RequestedAt != y.RequestedAt {
			return x.RequestedAt < y.RequestedAt
		}
		return x.Ordinal < y.Ordinal
	})
}

func toRequests(items []requestItem) ([]*entities.Request, error) {
	out := make([]*entities.Request, 0, len(items))
	for _, item := range items {
		r, err := item.toRequest()
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", item.RequestID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// SeedLifeSnapshot overwrites the stored snapshot. Used by operator tooling.
func (s *CompanionStore) SeedLifeSnapshot(ctx context.Context, snapshot entities.LifeSnapshot) error {
	_, version, err := s.getSnapshot(ctx, snapshot.CompanionID)
	if err != nil {
		return dbError("SeedLifeSnapshot", err)
	}
	av, err := attributevalue.MarshalMap(newSnapshotItem(snapshot, version+1))
	if err != nil {
		return dbError("SeedLifeSnapshot", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return dbError("SeedLifeSnapshot", err)
	}
	s.logger.Info("Seeded life snapshot",
		zap.String("companion_id", snapshot.CompanionID.String()),
		zap.Int("version", version+1),
	)
	return nil
}
