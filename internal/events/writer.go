package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ShovalB85/RasApp/internal/domain"
)

// Custody and roster event types.
const (
	StockAdded        = "inventory.stock_added"
	QuantitySet       = "inventory.quantity_set"
	SerialsSet        = "inventory.serials_set"
	SerialRemoved     = "inventory.serial_removed"
	ItemDeleted       = "inventory.item_deleted"
	ItemAssigned      = "custody.assigned"
	ExternalAssigned  = "custody.external_assigned"
	AssignmentUpdated = "custody.updated"
	ItemReturned      = "custody.returned"
	BulkAssigned      = "custody.bulk_assigned"

	FrameworkCreated   = "roster.framework_created"
	PersonAdded        = "roster.person_added"
	PersonRenamed      = "roster.person_renamed"
	PersonRemoved      = "roster.person_removed"
	RoleChanged        = "roster.role_changed"
	DeploymentCreated  = "roster.deployment_created"
	DeploymentUpdated  = "roster.deployment_updated"
	DeploymentDeleted  = "roster.deployment_deleted"
	ParticipantAdded   = "roster.participant_added"
	ParticipantRemoved = "roster.participant_removed"
	TeamSaved          = "roster.team_saved"
	TeamDeleted        = "roster.team_deleted"

	TaskCreated  = "task.created"
	TaskUpdated  = "task.updated"
	TaskComplete = "task.completed"
	TaskReopened = "task.reopened"
	TaskDeleted  = "task.deleted"

	PasswordSet      = "account.password_set"
	SnapshotRestored = "snapshot.restored"
)

type Payload map[string]any

// New builds an event stamped with now.
func New(now time.Time, evtType, deploymentID, entityKind, entityID, actorID string, payload Payload) domain.Event {
	if payload == nil {
		payload = Payload{}
	}
	return domain.Event{
		TS:           now.UTC().Format(time.RFC3339),
		Type:         evtType,
		DeploymentID: optional(deploymentID),
		EntityKind:   entityKind,
		EntityID:     optional(entityID),
		ActorID:      actorID,
		Payload:      payload,
	}
}

type Writer struct {
	Now func() time.Time
}

// Append inserts evt into the events table using the caller's transaction.
func (w Writer) Append(ctx context.Context, tx sqlx.ExecerContext, evt domain.Event) error {
	if evt.TS == "" {
		if w.Now == nil {
			w.Now = time.Now
		}
		evt.TS = w.Now().UTC().Format(time.RFC3339)
	}
	payload := evt.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,deployment_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		evt.TS, evt.Type, evt.DeploymentID, evt.EntityKind, evt.EntityID, evt.ActorID, string(data))
	return err
}

// DecodePayload parses a stored payload column.
func DecodePayload(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
