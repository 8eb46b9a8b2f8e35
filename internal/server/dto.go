package server

import (
	"time"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
)

// Request payloads

type LoginRequest struct {
	PersonalNumber string `json:"personal_number"`
	Password       string `json:"password,omitempty"`
}

type SetPasswordRequest struct {
	PersonalNumber string `json:"personal_number"`
	Password       string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type NameRequest struct {
	Name string `json:"name"`
}

type CreateDeploymentRequest struct {
	FrameworkID string `json:"framework_id"`
	Name        string `json:"name"`
}

type RoleRequest struct {
	Role domain.Role `json:"role" enum:"admin,manager,member"`
}

// AssignRequest hands out inventory when InventoryItemID is set and records
// an external item otherwise. Provider defaults to the deployment name for
// inventory and to "External" otherwise.
type AssignRequest struct {
	InventoryItemID string `json:"inventory_item_id,omitempty"`
	Quantity        int    `json:"quantity,omitempty" maximum:"2147483647"`
	Serial          string `json:"serial,omitempty"`
	Name            string `json:"name,omitempty"`
	Provider        string `json:"provider,omitempty"`
	DeploymentID    string `json:"deployment_id,omitempty"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity" minimum:"0" maximum:"2147483647"`
}

type SerialStateRequest struct {
	Serials          []string `json:"serials"`
	NoSerialQuantity int      `json:"no_serial_quantity,omitempty" minimum:"0" maximum:"2147483647"`
}

type AddStockRequest struct {
	Lines []engine.StockLine `json:"lines" minItems:"1"`
}

type ParticipantsRequest struct {
	PersonIDs []string `json:"person_ids" minItems:"1"`
}

type BulkAssignRequest struct {
	Quantities map[string]int `json:"quantities"`
	PersonIDs  []string       `json:"person_ids" minItems:"1"`
}

// Response payloads

type LoginResponse struct {
	Token              string         `json:"token,omitempty"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty"`
	Person             *domain.Person `json:"person,omitempty"`
	NeedsPassword      bool           `json:"needs_password,omitempty"`
	NeedsPasswordEntry bool           `json:"needs_password_entry,omitempty"`
}

type UpdateAssignedResponse struct {
	Item     *domain.AssignedItem `json:"item,omitempty"`
	Returned bool                 `json:"returned"`
}

type EventPage struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
