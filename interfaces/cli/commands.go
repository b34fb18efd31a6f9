package cli

import (
	"context"

	"companionlife/application/commands"
	"companionlife/application/commands/bus"
	"companionlife/application/queries"
	querybus "companionlife/application/queries/bus"
	"companionlife/domain/services"
	pkgerrors "companionlife/pkg/errors"

	"github.com/spf13/cobra"
)

// GenerateOutput is printed for generate, including refusals.
type GenerateOutput struct {
	Generated                int                             `json:"generated"`
	Reason                   string                          `json:"reason,omitempty"`
	CooldownSecondsRemaining int                             `json:"cooldownSecondsRemaining,omitempty"`
	Result                   *commands.GenerateRequestsResult `json:"result,omitempty"`
}

// NewLifeCommand creates the life command.
func NewLifeCommand(opts *RootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "life",
		Short: "Show the life snapshot and the day's rituals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ask(cmd, opts, queries.GetLifeOverviewQuery{CompanionID: opts.Companion, Date: date})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "ritual date (YYYY-MM-DD), defaults to today")
	return cmd
}

// NewCadenceCommand creates the cadence command.
func NewCadenceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cadence",
		Short: "Show open slots, next due request and recovery pressure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ask(cmd, opts, queries.GetCadenceQuery{CompanionID: opts.Companion})
		},
	}
}

// NewRequestsCommand creates the requests command.
func NewRequestsCommand(opts *RootOptions) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List open requests in ranked order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ask(cmd, opts, queries.ListRequestsQuery{
				CompanionID: opts.Companion,
				Filter:      string(services.ParseRequestFilter(filter)),
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "all|critical|important|gentle|overdue")
	return cmd
}

// NewAnalyticsCommand creates the analytics command.
func NewAnalyticsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show response analytics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ask(cmd, opts, queries.GetAnalyticsQuery{CompanionID: opts.Companion})
		},
	}
}

// NewDayTickCommand creates the day-tick command.
func NewDayTickCommand(opts *RootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "day-tick",
		Short: "Advance the companion's day and schedule its rituals",
		Long: `Run the day tick: decay, emotional arc, fatigue and the
day's ritual schedule. Running it twice for the same date is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, opts, commands.ProcessDayTickCommand{CompanionID: opts.Companion, Date: date})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to process (YYYY-MM-DD), defaults to today")
	return cmd
}

// NewGenerateCommand creates the generate command. A cadence refusal is
// printed rather than treated as a failure.
func NewGenerateCommand(opts *RootOptions) *cobra.Command {
	var maxRequests int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate new requests within the cadence guardrail",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			container, cleanup, err := openContainer(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := container.CommandBus.Send(ctx, commands.GenerateRequestsCommand{
				CompanionID: opts.Companion,
				MaxRequests: maxRequests,
			})
			if pkgerrors.IsCooldownViolation(err) {
				appErr := pkgerrors.GetAppError(err)
				out := GenerateOutput{Reason: appErr.Code}
				if secs, ok := appErr.Details["cooldown_seconds_remaining"].(int); ok {
					out.CooldownSecondsRemaining = secs
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			if err != nil {
				return err
			}
			generated := result.(*commands.GenerateRequestsResult)
			return writeJSON(cmd.OutOrStdout(), GenerateOutput{Generated: generated.Generated, Result: generated})
		},
	}
	cmd.Flags().IntVar(&maxRequests, "max", 0, "cap on requests to create, 0 uses the configured limit")
	return cmd
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(opts *RootOptions) *cobra.Command {
	var snoozeMinutes int
	cmd := &cobra.Command{
		Use:   "resolve <request-id> <accept|complete|decline|snooze>",
		Short: "Apply a lifecycle action to a request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, opts, commands.ResolveRequestCommand{
				CompanionID:   opts.Companion,
				RequestID:     args[0],
				Action:        commands.RequestAction(args[1]),
				SnoozeMinutes: snoozeMinutes,
			})
		},
	}
	cmd.Flags().IntVar(&snoozeMinutes, "snooze", 0, "snooze length in minutes, 0 uses the configured default")
	return cmd
}

// NewCompleteRitualCommand creates the complete-ritual command.
func NewCompleteRitualCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete-ritual <ritual-id>",
		Short: "Complete one of today's rituals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, opts, commands.CompleteRitualCommand{CompanionID: opts.Companion, RitualID: args[0]})
		},
	}
}

func send(cmd *cobra.Command, opts *RootOptions, command bus.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	container, cleanup, err := openContainer(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := container.CommandBus.Send(ctx, command)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

func ask(cmd *cobra.Command, opts *RootOptions, query querybus.Query) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	container, cleanup, err := openContainer(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := container.QueryBus.Ask(ctx, query)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}
