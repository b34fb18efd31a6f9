package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"companionlife/application/commands"
	"companionlife/application/queries"
	pkgerrors "companionlife/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes cadencectl with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	names := []string{"life", "cadence", "requests", "analytics", "day-tick", "generate", "resolve", "complete-ritual"}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	companion := cmd.PersistentFlags().Lookup("companion")
	require.NotNil(t, companion)
	assert.Equal(t, "c", companion.Shorthand)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("store"))
}

func TestMissingCompanion(t *testing.T) {
	_, err := run(t, "cadence", "--store", "memory")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestUnknownStore(t *testing.T) {
	_, err := run(t, "cadence", "-c", "user-1", "--store", "postgres")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDayTickPersistsAcrossInvocations(t *testing.T) {
	// Arrange
	db := filepath.Join(t.TempDir(), "cadence.db")

	// Act
	tickOut, err := run(t, "day-tick", "--db", db, "-c", "user-1", "--date", "2026-03-14")
	require.NoError(t, err)
	lifeOut, err := run(t, "life", "--db", db, "-c", "user-1", "--date", "2026-03-14")
	require.NoError(t, err)

	// Assert
	var tick commands.DayTickResult
	require.NoError(t, json.Unmarshal([]byte(tickOut), &tick))
	assert.Equal(t, "2026-03-14", tick.RitualDate)
	assert.Positive(t, tick.RitualsCreated)

	var life queries.LifeOverview
	require.NoError(t, json.Unmarshal([]byte(lifeOut), &life))
	assert.Len(t, life.Rituals, tick.RitualCount)
	assert.Equal(t, tick.RitualCount, life.Pending)
}

func TestCompleteRitual(t *testing.T) {
	// Arrange
	db := filepath.Join(t.TempDir(), "cadence.db")
	_, err := run(t, "day-tick", "--db", db, "-c", "user-1", "--date", "2026-03-14")
	require.NoError(t, err)
	lifeOut, err := run(t, "life", "--db", db, "-c", "user-1", "--date", "2026-03-14")
	require.NoError(t, err)
	var life queries.LifeOverview
	require.NoError(t, json.Unmarshal([]byte(lifeOut), &life))
	require.NotEmpty(t, life.Rituals)
	ritualID := life.Rituals[0].ID.String()

	// Act
	firstOut, err := run(t, "complete-ritual", ritualID, "--db", db, "-c", "user-1")
	require.NoError(t, err)
	secondOut, err := run(t, "complete-ritual", ritualID, "--db", db, "-c", "user-1")
	require.NoError(t, err)

	// Assert
	var first, second commands.CompleteRitualResult
	require.NoError(t, json.Unmarshal([]byte(firstOut), &first))
	require.NoError(t, json.Unmarshal([]byte(secondOut), &second))
	assert.True(t, first.Success)
	assert.False(t, first.AlreadyCompleted)
	assert.True(t, second.AlreadyCompleted)
}

func TestGenerateThenResolve(t *testing.T) {
	// Arrange
	db := filepath.Join(t.TempDir(), "cadence.db")

	// Act
	genOut, err := run(t, "generate", "--db", db, "-c", "user-1", "--max", "2")
	require.NoError(t, err)
	listOut, err := run(t, "requests", "--db", db, "-c", "user-1", "--filter", "bogus")
	require.NoError(t, err)

	// Assert
	var gen GenerateOutput
	require.NoError(t, json.Unmarshal([]byte(genOut), &gen))
	var list queries.RequestListView
	require.NoError(t, json.Unmarshal([]byte(listOut), &list))
	assert.Equal(t, "all", string(list.Filter))
	assert.LessOrEqual(t, gen.Generated, 2)
	assert.Len(t, list.Requests, gen.Generated)

	if gen.Generated == 0 {
		return
	}
	requestID := list.Requests[0].ID.String()
	resolveOut, err := run(t, "resolve", requestID, "accept", "--db", db, "-c", "user-1")
	require.NoError(t, err)
	var resolved commands.ResolveRequestResult
	require.NoError(t, json.Unmarshal([]byte(resolveOut), &resolved))
	assert.Equal(t, commands.ActionAccept, resolved.Action)

	_, err = run(t, "resolve", requestID, "shout", "--db", db, "-c", "user-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestWriteError(t *testing.T) {
	var out bytes.Buffer

	WriteError(&out, pkgerrors.NewCooldownViolationError(pkgerrors.ReasonMaxOpenRequests, 0))

	var decoded ErrorOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "COOLDOWN_VIOLATION", decoded.Code)

	out.Reset()
	WriteError(&out, WrapExitError(ExitCommandError, "failed to open store", errors.New("disk full")))
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "failed to open store: disk full", decoded.Error)
}
