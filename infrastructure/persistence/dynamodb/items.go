package dynamodb

import (
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
)

// Single-table layout. Every companion item lives under COMPANION#<id>.
const (
	entitySnapshot = "LIFE_SNAPSHOT"
	entityRequest  = "REQUEST"
	entityRitual   = "RITUAL"

	snapshotSK    = "LIFE"
	requestPrefix = "REQUEST#"
	ritualPrefix  = "RITUAL#"
)

func companionPK(id valueobjects.CompanionID) string { return "COMPANION#" + id.String() }
func requestSK(id valueobjects.RequestID) string     { return requestPrefix + id.String() }
func ritualSK(id valueobjects.RitualID) string       { return ritualPrefix + id.String() }

type snapshotItem struct {
	PK                      string  `dynamodbav:"PK"`
	SK                      string  `dynamodbav:"SK"`
	EntityType              string  `dynamodbav:"EntityType"`
	CompanionID             string  `dynamodbav:"CompanionID"`
	CurrentEmotionalArc     string  `dynamodbav:"CurrentEmotionalArc"`
	RoutineStabilityScore   float64 `dynamodbav:"RoutineStabilityScore"`
	RequestFatigue          int     `dynamodbav:"RequestFatigue"`
	CareScore               float64 `dynamodbav:"CareScore"`
	CareConsistency         float64 `dynamodbav:"CareConsistency"`
	BondLevel               float64 `dynamodbav:"BondLevel"`
	IsDormant               bool    `dynamodbav:"IsDormant"`
	LastDayTickDate         string  `dynamodbav:"LastDayTickDate,omitempty"`
	LastRequestsGeneratedAt string  `dynamodbav:"LastRequestsGeneratedAt,omitempty"`
	UpdatedAt               string  `dynamodbav:"UpdatedAt"`
	Version                 int     `dynamodbav:"Version"`
}

func newSnapshotItem(s entities.LifeSnapshot, version int) snapshotItem {
	return snapshotItem{
		PK:                      companionPK(s.CompanionID),
		SK:                      snapshotSK,
		EntityType:              entitySnapshot,
		CompanionID:             s.CompanionID.String(),
		CurrentEmotionalArc:     string(s.CurrentEmotionalArc),
		RoutineStabilityScore:   s.RoutineStabilityScore,
		RequestFatigue:          s.RequestFatigue,
		CareScore:               s.CareScore,
		CareConsistency:         s.CareConsistency,
		BondLevel:               s.BondLevel,
		IsDormant:               s.IsDormant,
		LastDayTickDate:         s.LastDayTickDate,
		LastRequestsGeneratedAt: formatTimePtr(s.LastRequestsGeneratedAt),
		UpdatedAt:               formatTime(s.UpdatedAt),
		Version:                 version,
	}
}

func (i snapshotItem) toSnapshot() (entities.LifeSnapshot, error) {
	updatedAt, err := parseTime(i.UpdatedAt)
	if err != nil {
		return entities.LifeSnapshot{}, err
	}
	generatedAt, err := parseTimePtr(i.LastRequestsGeneratedAt)
	if err != nil {
		return entities.LifeSnapshot{}, err
	}
	return entities.LifeSnapshot{
		CompanionID:             valueobjects.CompanionID(i.CompanionID),
		CurrentEmotionalArc:     valueobjects.EmotionalArc(i.CurrentEmotionalArc),
		RoutineStabilityScore:   i.RoutineStabilityScore,
		RequestFatigue:          i.RequestFatigue,
		CareScore:               i.CareScore,
		CareConsistency:         i.CareConsistency,
		BondLevel:               i.BondLevel,
		IsDormant:               i.IsDormant,
		LastDayTickDate:         i.LastDayTickDate,
		LastRequestsGeneratedAt: generatedAt,
		UpdatedAt:               updatedAt,
	}, nil
}

type requestItem struct {
	PK              string                 `dynamodbav:"PK"`
	SK              string                 `dynamodbav:"SK"`
	EntityType      string                 `dynamodbav:"EntityType"`
	RequestID       string                 `dynamodbav:"RequestID"`
	CompanionID     string                 `dynamodbav:"CompanionID"`
	RequestType     string                 `dynamodbav:"RequestType"`
	Title           string                 `dynamodbav:"Title"`
	Prompt          string                 `dynamodbav:"Prompt"`
	Urgency         string                 `dynamodbav:"Urgency"`
	Status          string                 `dynamodbav:"Status"`
	DueAt           string                 `dynamodbav:"DueAt,omitempty"`
	RequestedAt     string                 `dynamodbav:"RequestedAt"`
	Ordinal         int                    `dynamodbav:"Ordinal"`
	ResolvedAt      string                 `dynamodbav:"ResolvedAt,omitempty"`
	ResponseStyle   string                 `dynamodbav:"ResponseStyle,omitempty"`
	ConsequenceHint string                 `dynamodbav:"ConsequenceHint,omitempty"`
	RequestContext  map[string]interface{} `dynamodbav:"RequestContext"`
}

// newRequestItem maps a request. ordinal keeps creation order stable for
// requests that share a RequestedAt instant.
func newRequestItem(r *entities.Request, ordinal int) requestItem {
	snap := r.Snapshot()
	item := requestItem{
		PK:             companionPK(snap.CompanionID),
		SK:             requestSK(snap.ID),
		EntityType:     entityRequest,
		RequestID:      snap.ID.String(),
		CompanionID:    snap.CompanionID.String(),
		RequestType:    snap.RequestType,
		Title:          snap.Title,
		Prompt:         snap.Prompt,
		Urgency:        string(snap.Urgency),
		Status:         string(snap.Status),
		DueAt:          formatTimePtr(snap.DueAt),
		RequestedAt:    formatTime(snap.RequestedAt),
		Ordinal:        ordinal,
		ResolvedAt:     formatTimePtr(snap.ResolvedAt),
		RequestContext: map[string]interface{}(snap.RequestContext.Clone()),
	}
	if snap.ResponseStyle != nil {
		item.ResponseStyle = *snap.ResponseStyle
	}
	if snap.ConsequenceHint != nil {
		item.ConsequenceHint = *snap.ConsequenceHint
	}
	return item
}

func (i requestItem) toRequest() (*entities.Request, error) {
	requestedAt, err := parseTime(i.RequestedAt)
	if err != nil {
		return nil, err
	}
	dueAt, err := parseTimePtr(i.DueAt)
	if err != nil {
		return nil, err
	}
	resolvedAt, err := parseTimePtr(i.ResolvedAt)
	if err != nil {
		return nil, err
	}
	reqCtx := valueobjects.RequestContext(i.RequestContext)
	if reqCtx == nil {
		reqCtx = valueobjects.NewRequestContext()
	}
	return entities.ReconstructRequest(entities.RequestSnapshot{
		ID:              valueobjects.RequestID(i.RequestID),
		CompanionID:     valueobjects.CompanionID(i.CompanionID),
		RequestType:     i.RequestType,
		Title:           i.Title,
		Prompt:          i.Prompt,
		Urgency:         valueobjects.Urgency(i.Urgency),
		Status:          valueobjects.RequestStatus(i.Status),
		DueAt:           dueAt,
		RequestedAt:     requestedAt,
		ResolvedAt:      resolvedAt,
		ResponseStyle:   optional(i.ResponseStyle),
		ConsequenceHint: optional(i.ConsequenceHint),
		RequestContext:  reqCtx,
	}), nil
}

type ritualItem struct {
	PK          string                    `dynamodbav:"PK"`
	SK          string                    `dynamodbav:"SK"`
	EntityType  string                    `dynamodbav:"EntityType"`
	RitualID    string                    `dynamodbav:"RitualID"`
	CompanionID string                    `dynamodbav:"CompanionID"`
	RitualDate  string                    `dynamodbav:"RitualDate"`
	Status      string                    `dynamodbav:"Status"`
	Urgency     string                    `dynamodbav:"Urgency"`
	CompletedAt string                    `dynamodbav:"CompletedAt,omitempty"`
	CreatedAt   string                    `dynamodbav:"CreatedAt"`
	Definition  entities.RitualDefinition `dynamodbav:"Definition"`
}

func newRitualItem(r *entities.Ritual) ritualItem {
	snap := r.Snapshot()
	return ritualItem{
		PK:          companionPK(snap.CompanionID),
		SK:          ritualSK(snap.ID),
		EntityType:  entityRitual,
		RitualID:    snap.ID.String(),
		CompanionID: snap.CompanionID.String(),
		RitualDate:  snap.RitualDate,
		Status:      string(snap.Status),
		Urgency:     string(snap.Urgency),
		CompletedAt: formatTimePtr(snap.CompletedAt),
		CreatedAt:   formatTime(snap.CreatedAt),
		Definition:  snap.Definition,
	}
}

func (i ritualItem) toRitual() (*entities.Ritual, error) {
	createdAt, err := parseTime(i.CreatedAt)
	if err != nil {
		return nil, err
	}
	completedAt, err := parseTimePtr(i.CompletedAt)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructRitual(entities.RitualSnapshot{
		ID:          valueobjects.RitualID(i.RitualID),
		CompanionID: valueobjects.CompanionID(i.CompanionID),
		RitualDate:  i.RitualDate,
		Status:      valueobjects.RitualStatus(i.Status),
		Urgency:     valueobjects.Urgency(i.Urgency),
		CompletedAt: completedAt,
		CreatedAt:   createdAt,
		Definition:  i.Definition,
	}), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
