package domain

import "strings"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

// Elevated reports whether the role may manage inventory at all.
func (r Role) Elevated() bool { return r == RoleAdmin || r == RoleManager }

type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

type AssigneeType string

const (
	AssignPerson AssigneeType = "person"
	AssignTeam   AssigneeType = "team"
)

type NotifyPolicy string

const (
	NotifyCreator     NotifyPolicy = "creator"
	NotifyAllManagers NotifyPolicy = "all-managers"
)

type Framework struct {
	ID        string   `json:"id" db:"id"`
	Name      string   `json:"name" db:"name"`
	CreatedAt string   `json:"created_at" db:"created_at" format:"date-time"`
	Persons   []Person `json:"persons,omitempty" db:"-"`
}

type Deployment struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	FrameworkID    string   `json:"framework_id"`
	ParticipantIDs []string `json:"participant_ids"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

func (d Deployment) HasParticipant(personID string) bool {
	for _, id := range d.ParticipantIDs {
		if id == personID {
			return true
		}
	}
	return false
}

type Person struct {
	ID             string         `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	PersonalNumber string         `json:"personal_number" db:"personal_number"`
	Role           Role           `json:"role" db:"role" enum:"admin,manager,member"`
	FrameworkID    string         `json:"framework_id" db:"framework_id"`
	PasswordHash   *string        `json:"-" db:"password_hash"`
	IsPrimaryAdmin bool           `json:"is_primary_admin,omitempty" db:"is_primary_admin"`
	CreatedAt      string         `json:"created_at" db:"created_at" format:"date-time"`
	AssignedItems  []AssignedItem `json:"assigned_items,omitempty" db:"-"`
}

func (p Person) NeedsPassword() bool { return p.PasswordHash == nil || *p.PasswordHash == "" }

type InventoryItem struct {
	ID           string   `json:"id"`
	DeploymentID string   `json:"deployment_id"`
	Name         string   `json:"name"`
	TracksSerial bool     `json:"tracks_serial"`
	Quantity     int      `json:"quantity"`
	Serials      []string `json:"serials"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

// MaxQuantity bounds every stored or assigned quantity so sums over an item
// stay far from integer overflow.
const MaxQuantity = 1<<31 - 1

// Total is the stored capacity: unassigned serials plus the no-serial bucket
// for serialized items, the plain quantity otherwise.
func (i InventoryItem) Total() int {
	if i.TracksSerial {
		return len(i.Serials) + i.Quantity
	}
	return i.Quantity
}

func (i InventoryItem) HasSerial(serial string) bool {
	for _, s := range i.Serials {
		if s == serial {
			return true
		}
	}
	return false
}

// ItemKey is the merge key for stock lines within a deployment.
func ItemKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type AssignedItem struct {
	ID              string  `json:"id" db:"id"`
	PersonID        string  `json:"person_id" db:"person_id"`
	Name            string  `json:"name" db:"name"`
	Quantity        int     `json:"quantity" db:"quantity"`
	Serial          *string `json:"serial,omitempty" db:"serial"`
	Provider        string  `json:"provider" db:"provider"`
	InventoryItemID *string `json:"inventory_item_id,omitempty" db:"inventory_item_id"`
	DeploymentID    *string `json:"deployment_id,omitempty" db:"deployment_id"`
	AssignedAt      string  `json:"assigned_at" db:"assigned_at" format:"date-time"`
}

func (a AssignedItem) HasSerial() bool { return a.Serial != nil && *a.Serial != "" }

func (a AssignedItem) External() bool { return a.InventoryItemID == nil }

type Team struct {
	ID           string   `json:"id"`
	DeploymentID string   `json:"deployment_id"`
	Name         string   `json:"name"`
	MemberIDs    []string `json:"member_ids"`
	LeaderID     string   `json:"leader_id"`
}

func (t Team) HasMember(personID string) bool {
	for _, id := range t.MemberIDs {
		if id == personID {
			return true
		}
	}
	return false
}

type Task struct {
	ID               string       `json:"id"`
	DeploymentID     string       `json:"deployment_id"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Start            string       `json:"start" format:"date-time"`
	AllDay           bool         `json:"all_day"`
	IsRecurring      bool         `json:"is_recurring"`
	Recurrence       Recurrence   `json:"recurrence" enum:"none,daily,weekly,monthly"`
	AssignedToType   AssigneeType `json:"assigned_to_type" enum:"person,team"`
	AssignedToIDs    []string     `json:"assigned_to_ids"`
	CreatorID        string       `json:"creator_id"`
	IsComplete       bool         `json:"is_complete"`
	NotifyOnComplete NotifyPolicy `json:"notify_on_complete" enum:"creator,all-managers"`
	CreatedAt        string       `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID          string  `json:"id" db:"id"`
	RecipientID string  `json:"recipient_id" db:"recipient_id"`
	Message     string  `json:"message" db:"message"`
	Read        bool    `json:"read" db:"is_read"`
	CreatedAt   string  `json:"created_at" db:"created_at" format:"date-time"`
	TaskID      *string `json:"task_id,omitempty" db:"task_id"`
}

type Event struct {
	ID           int64          `json:"id"`
	TS           string         `json:"ts" format:"date-time"`
	Type         string         `json:"type"`
	DeploymentID *string        `json:"deployment_id,omitempty"`
	EntityKind   string         `json:"entity_kind"`
	EntityID     *string        `json:"entity_id,omitempty"`
	ActorID      string         `json:"actor_id"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// SnapshotPerson carries the credential hash that Person hides from JSON.
type SnapshotPerson struct {
	Person
	PasswordHash *string `json:"password_hash,omitempty"`
}

const SnapshotVersion = 1

type Snapshot struct {
	Version       int              `json:"version"`
	ExportedAt    string           `json:"exported_at" format:"date-time"`
	Frameworks    []Framework      `json:"frameworks"`
	Deployments   []Deployment     `json:"deployments"`
	People        []SnapshotPerson `json:"people"`
	Items         []InventoryItem  `json:"items"`
	Assignments   []AssignedItem   `json:"assignments"`
	Teams         []Team           `json:"teams"`
	Tasks         []Task           `json:"tasks"`
	Notifications []Notification   `json:"notifications"`
}
