package repo

import (
	"context"

	"github.com/ShovalB85/RasApp/internal/domain"
)

// ErrNotFound is returned by every Get/Find when the row does not exist.
var ErrNotFound = domain.ErrNotFound

// Store runs units of work. Each call to InTx is atomic: either every write
// made through the Tx is kept or none is.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}

type DeploymentFilter struct {
	FrameworkID   string
	ParticipantID string
}

type PersonFilter struct {
	FrameworkID string
	Roles       []domain.Role
}

type AssignedFilter struct {
	PersonID        string
	InventoryItemID string
	DeploymentID    string
	// NoSerial limits the result to plain quantity assignments.
	NoSerial bool
}

type EventFilter struct {
	DeploymentID string
	Type         string
	EntityKind   string
	EntityID     string
	BeforeID     int64
	Limit        int
}

// Tx is the persistence surface the engine works against.
type Tx interface {
	InsertFramework(ctx context.Context, f domain.Framework) error
	GetFramework(ctx context.Context, id string) (domain.Framework, error)
	ListFrameworks(ctx context.Context) ([]domain.Framework, error)

	InsertDeployment(ctx context.Context, d domain.Deployment) error
	UpdateDeployment(ctx context.Context, d domain.Deployment) error
	GetDeployment(ctx context.Context, id string) (domain.Deployment, error)
	ListDeployments(ctx context.Context, f DeploymentFilter) ([]domain.Deployment, error)
	DeleteDeployment(ctx context.Context, id string) error
	AddParticipant(ctx context.Context, deploymentID, personID string) error
	RemoveParticipant(ctx context.Context, deploymentID, personID string) error

	InsertPerson(ctx context.Context, p domain.Person) error
	UpdatePerson(ctx context.Context, p domain.Person) error
	GetPerson(ctx context.Context, id string) (domain.Person, error)
	GetPersonByPersonalNumber(ctx context.Context, personalNumber string) (domain.Person, error)
	ListPeople(ctx context.Context, f PersonFilter) ([]domain.Person, error)
	DeletePerson(ctx context.Context, id string) error

	InsertItem(ctx context.Context, it domain.InventoryItem) error
	UpdateItem(ctx context.Context, it domain.InventoryItem) error
	GetItem(ctx context.Context, id string) (domain.InventoryItem, error)
	FindItem(ctx context.Context, deploymentID, name string, tracksSerial bool) (domain.InventoryItem, error)
	ListItems(ctx context.Context, deploymentID string) ([]domain.InventoryItem, error)
	DeleteItem(ctx context.Context, id string) error

	InsertAssigned(ctx context.Context, a domain.AssignedItem) error
	UpdateAssigned(ctx context.Context, a domain.AssignedItem) error
	GetAssigned(ctx context.Context, id string) (domain.AssignedItem, error)
	ListAssigned(ctx context.Context, f AssignedFilter) ([]domain.AssignedItem, error)
	DeleteAssigned(ctx context.Context, id string) error

	InsertTeam(ctx context.Context, t domain.Team) error
	UpdateTeam(ctx context.Context, t domain.Team) error
	GetTeam(ctx context.Context, id string) (domain.Team, error)
	ListTeams(ctx context.Context, deploymentID string) ([]domain.Team, error)
	DeleteTeam(ctx context.Context, id string) error

	InsertTask(ctx context.Context, t domain.Task) error
	UpdateTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, id string) (domain.Task, error)
	ListTasks(ctx context.Context, deploymentID string) ([]domain.Task, error)
	DeleteTask(ctx context.Context, id string) error

	InsertNotification(ctx context.Context, n domain.Notification) error
	GetNotification(ctx context.Context, id string) (domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	ListNotifications(ctx context.Context, recipientID string) ([]domain.Notification, error)

	AppendEvent(ctx context.Context, evt domain.Event) error
	ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error)

	// Reset removes every domain row. The event log is kept.
	Reset(ctx context.Context) error
}

// SumQuantity adds up assignment quantities.
func SumQuantity(items []domain.AssignedItem) int {
	total := 0
	for _, a := range items {
		total += a.Quantity
	}
	return total
}

func hasRole(roles []domain.Role, r domain.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
