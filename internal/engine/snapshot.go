package engine

import (
	"context"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/events"
	"github.com/ShovalB85/RasApp/internal/repo"
)

// Export captures the whole entity graph. Admin only.
func (e Engine) Export(ctx context.Context, actorID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		if actor.Role != domain.RoleAdmin {
			return domain.PermissionDenied("snapshot.export")
		}
		var err error
		snap, err = readSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		snap.ExportedAt = e.stamp()
		return nil
	})
	return snap, err
}

func readSnapshot(ctx context.Context, tx repo.Tx) (domain.Snapshot, error) {
	snap := domain.Snapshot{Version: domain.SnapshotVersion}
	var err error
	if snap.Frameworks, err = tx.ListFrameworks(ctx); err != nil {
		return snap, err
	}
	if snap.Deployments, err = tx.ListDeployments(ctx, repo.DeploymentFilter{}); err != nil {
		return snap, err
	}
	people, err := tx.ListPeople(ctx, repo.PersonFilter{})
	if err != nil {
		return snap, err
	}
	snap.People = make([]domain.SnapshotPerson, 0, len(people))
	for _, p := range people {
		snap.People = append(snap.People, domain.SnapshotPerson{Person: p, PasswordHash: p.PasswordHash})
	}
	if snap.Items, err = tx.ListItems(ctx, ""); err != nil {
		return snap, err
	}
	if snap.Assignments, err = tx.ListAssigned(ctx, repo.AssignedFilter{}); err != nil {
		return snap, err
	}
	if snap.Teams, err = tx.ListTeams(ctx, ""); err != nil {
		return snap, err
	}
	if snap.Tasks, err = tx.ListTasks(ctx, ""); err != nil {
		return snap, err
	}
	if snap.Notifications, err = tx.ListNotifications(ctx, ""); err != nil {
		return snap, err
	}
	return snap, nil
}

// Restore replaces all state with snap in one transaction. The event log is
// kept and admins are re-added to every deployment afterwards.
func (e Engine) Restore(ctx context.Context, actorID string, snap domain.Snapshot) error {
	return e.mutate(ctx, "snapshot.restore", actorID, nil, func(tx repo.Tx, actor domain.Person) error {
		if actor.Role != domain.RoleAdmin {
			return domain.PermissionDenied("snapshot.restore")
		}
		if snap.Version != domain.SnapshotVersion {
			return domain.InvalidArgument("unsupported snapshot version %d", snap.Version)
		}
		hasAdmin := false
		for _, p := range snap.People {
			if p.Role == domain.RoleAdmin {
				hasAdmin = true
				break
			}
		}
		if !hasAdmin {
			return domain.InvalidArgument("snapshot has no admin")
		}
		for _, it := range snap.Items {
			if it.Quantity < 0 || it.Total() > domain.MaxQuantity {
				return domain.InvalidArgument("item %s quantity out of range", it.ID)
			}
		}
		for _, a := range snap.Assignments {
			if a.Quantity <= 0 || a.Quantity > domain.MaxQuantity {
				return domain.InvalidArgument("assignment %s quantity out of range", a.ID)
			}
		}
		if err := tx.Reset(ctx); err != nil {
			return err
		}
		if err := writeSnapshot(ctx, tx, snap); err != nil {
			return err
		}
		for _, p := range snap.People {
			if p.Role != domain.RoleAdmin {
				continue
			}
			if err := addToAllDeployments(ctx, tx, p.ID); err != nil {
				return err
			}
		}
		return e.emit(ctx, tx, events.SnapshotRestored, "", "snapshot", "", actor.ID, events.Payload{
			"frameworks":  len(snap.Frameworks),
			"deployments": len(snap.Deployments),
			"people":      len(snap.People),
			"items":       len(snap.Items),
			"assignments": len(snap.Assignments),
			"teams":       len(snap.Teams),
			"tasks":       len(snap.Tasks),
		})
	})
}

// writeSnapshot inserts in foreign-key order.
func writeSnapshot(ctx context.Context, tx repo.Tx, snap domain.Snapshot) error {
	for _, f := range snap.Frameworks {
		f.Persons = nil
		if err := tx.InsertFramework(ctx, f); err != nil {
			return err
		}
	}
	known := map[string]bool{}
	for _, sp := range snap.People {
		p := sp.Person
		p.PasswordHash = sp.PasswordHash
		p.AssignedItems = nil
		if err := tx.InsertPerson(ctx, p); err != nil {
			return err
		}
		known[p.ID] = true
	}
	for _, d := range snap.Deployments {
		ids := make([]string, 0, len(d.ParticipantIDs))
		for _, id := range d.ParticipantIDs {
			if known[id] {
				ids = append(ids, id)
			}
		}
		d.ParticipantIDs = ids
		if err := tx.InsertDeployment(ctx, d); err != nil {
			return err
		}
	}
	for _, it := range snap.Items {
		if err := tx.InsertItem(ctx, it); err != nil {
			return err
		}
	}
	for _, a := range snap.Assignments {
		if err := tx.InsertAssigned(ctx, a); err != nil {
			return err
		}
	}
	for _, tm := range snap.Teams {
		if err := tx.InsertTeam(ctx, tm); err != nil {
			return err
		}
	}
	for _, tk := range snap.Tasks {
		if err := tx.InsertTask(ctx, tk); err != nil {
			return err
		}
	}
	for _, n := range snap.Notifications {
		if err := tx.InsertNotification(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
