// Package main runs the scheduled day tick. An EventBridge schedule invokes it
// with the companions to advance in the event detail.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	"companionlife/application/commands"
	"companionlife/application/commands/bus"
	"companionlife/infrastructure/config"
	"companionlife/infrastructure/di"
	pkgerrors "companionlife/pkg/errors"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentTicks bounds parallel companions per invocation.
const maxConcurrentTicks = 8

// TickDetail is the scheduled event's detail
type TickDetail struct {
	CompanionIDs []string `json:"companionIds"`
	// Date defaults to today (UTC).
	Date string `json:"date,omitempty"`
	// Generate also runs request generation after the tick.
	Generate bool `json:"generate,omitempty"`
}

// TickSummary is returned to the scheduler
type TickSummary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Generated int `json:"generated"`
	Refused   int `json:"refused"`
}

type commandSender interface {
	Send(ctx context.Context, cmd bus.Command) (interface{}, error)
}

type tickHandler struct {
	commandBus commandSender
	logger     *zap.Logger
}

// Handle advances every listed companion. One companion failing does not stop
// the others; the invocation fails only when every companion failed.
func (h *tickHandler) Handle(ctx context.Context, event awsevents.CloudWatchEvent) (*TickSummary, error) {
	var detail TickDetail
	if len(event.Detail) > 0 {
		if err := json.Unmarshal(event.Detail, &detail); err != nil {
			return nil, fmt.Errorf("decode tick detail: %w", err)
		}
	}
	if len(detail.CompanionIDs) == 0 {
		h.logger.Warn("Scheduled tick without companions", zap.String("event_id", event.ID))
		return &TickSummary{}, nil
	}

	var processed, failed, generated, refused atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTicks)

	for _, companionID := range detail.CompanionIDs {
		g.Go(func() error {
			if _, err := h.commandBus.Send(gctx, commands.ProcessDayTickCommand{CompanionID: companionID, Date: detail.Date}); err != nil {
				failed.Add(1)
				h.logger.Error("Day tick failed", zap.String("companion_id", companionID), zap.Error(err))
				return nil
			}
			processed.Add(1)

			if !detail.Generate {
				return nil
			}
			result, err := h.commandBus.Send(gctx, commands.GenerateRequestsCommand{CompanionID: companionID})
			switch {
			case pkgerrors.IsCooldownViolation(err):
				refused.Add(1)
			case err != nil:
				h.logger.Warn("Request generation failed", zap.String("companion_id", companionID), zap.Error(err))
			default:
				generated.Add(int64(result.(*commands.GenerateRequestsResult).Generated))
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &TickSummary{
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
		Generated: int(generated.Load()),
		Refused:   int(refused.Load()),
	}
	h.logger.Info("Scheduled tick finished",
		zap.String("event_id", event.ID),
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("generated", summary.Generated),
		zap.Int("refused", summary.Refused),
	)
	if summary.Processed == 0 {
		return summary, fmt.Errorf("day tick failed for all %d companions", summary.Failed)
	}
	return summary, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	container, cleanup, err := di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()

	h := &tickHandler{commandBus: container.CommandBus, logger: container.Logger}
	lambda.Start(h.Handle)
}
