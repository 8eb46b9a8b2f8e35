package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/events"
	"github.com/ShovalB85/RasApp/internal/repo"
)

type TaskInput struct {
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	Start            time.Time           `json:"start"`
	AllDay           bool                `json:"all_day,omitempty"`
	IsRecurring      bool                `json:"is_recurring,omitempty"`
	Recurrence       domain.Recurrence   `json:"recurrence,omitempty"`
	AssignedToType   domain.AssigneeType `json:"assigned_to_type,omitempty"`
	AssignedToIDs    []string            `json:"assigned_to_ids"`
	NotifyOnComplete domain.NotifyPolicy `json:"notify_on_complete,omitempty"`
}

// ToggleResult carries the task after the toggle and the successor created
// when a recurring task was completed.
type ToggleResult struct {
	Task      domain.Task  `json:"task"`
	Successor *domain.Task `json:"successor,omitempty"`
}

// NextOccurrence advances start by one recurrence step in calendar terms.
func NextOccurrence(start time.Time, r domain.Recurrence) time.Time {
	switch r {
	case domain.RecurrenceDaily:
		return start.AddDate(0, 0, 1)
	case domain.RecurrenceWeekly:
		return start.AddDate(0, 0, 7)
	case domain.RecurrenceMonthly:
		return start.AddDate(0, 1, 0)
	}
	return start
}

func formatStart(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func (e Engine) buildTask(ctx context.Context, tx repo.Tx, dep domain.Deployment, in TaskInput) (domain.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, domain.InvalidArgument("task title required")
	}
	if in.Start.IsZero() {
		return domain.Task{}, domain.InvalidArgument("task start required")
	}
	rec := in.Recurrence
	if rec == "" {
		rec = domain.RecurrenceNone
	}
	switch rec {
	case domain.RecurrenceNone, domain.RecurrenceDaily, domain.RecurrenceWeekly, domain.RecurrenceMonthly:
	default:
		return domain.Task{}, domain.InvalidArgument("unknown recurrence %q", rec)
	}
	if in.IsRecurring && rec == domain.RecurrenceNone {
		return domain.Task{}, domain.InvalidArgument("recurring task needs a recurrence")
	}
	if !in.IsRecurring {
		rec = domain.RecurrenceNone
	}
	notify := in.NotifyOnComplete
	if notify == "" {
		notify = domain.NotifyCreator
	}
	if notify != domain.NotifyCreator && notify != domain.NotifyAllManagers {
		return domain.Task{}, domain.InvalidArgument("unknown notify policy %q", notify)
	}
	kind := in.AssignedToType
	if kind == "" {
		kind = domain.AssignPerson
	}
	ids := dedupe(in.AssignedToIDs)
	switch kind {
	case domain.AssignTeam:
		if len(ids) != 1 {
			return domain.Task{}, domain.InvalidArgument("a team task targets exactly one team")
		}
		team, err := tx.GetTeam(ctx, ids[0])
		if err != nil {
			return domain.Task{}, err
		}
		if team.DeploymentID != dep.ID {
			return domain.Task{}, domain.InvalidArgument("team %s is not part of deployment %s", team.ID, dep.ID)
		}
	case domain.AssignPerson:
		if len(ids) == 0 {
			return domain.Task{}, domain.InvalidArgument("at least one assignee required")
		}
		for _, id := range ids {
			if !dep.HasParticipant(id) {
				return domain.Task{}, domain.InvalidArgument("person %s is not a participant of deployment %s", id, dep.ID)
			}
		}
	default:
		return domain.Task{}, domain.InvalidArgument("unknown assignee type %q", kind)
	}
	return domain.Task{
		DeploymentID:     dep.ID,
		Title:            title,
		Description:      strings.TrimSpace(in.Description),
		Start:            formatStart(in.Start),
		AllDay:           in.AllDay,
		IsRecurring:      in.IsRecurring,
		Recurrence:       rec,
		AssignedToType:   kind,
		AssignedToIDs:    ids,
		NotifyOnComplete: notify,
	}, nil
}

// assignees resolves team tasks to the team's members at call time.
func assignees(ctx context.Context, tx repo.Tx, task domain.Task) ([]string, error) {
	if task.AssignedToType != domain.AssignTeam {
		return dedupe(task.AssignedToIDs), nil
	}
	var out []string
	for _, id := range task.AssignedToIDs {
		team, err := tx.GetTeam(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, team.MemberIDs...)
	}
	return dedupe(out), nil
}

func (e Engine) CreateTask(ctx context.Context, actorID, deploymentID string, in TaskInput) (domain.Task, error) {
	var out domain.Task
	err := e.mutate(ctx, "task.create", actorID, logrus.Fields{"deployment": deploymentID}, func(tx repo.Tx, actor domain.Person) error {
		dep, err := viewableDeployment(ctx, tx, actor, deploymentID)
		if err != nil {
			return err
		}
		task, err := e.buildTask(ctx, tx, dep, in)
		if err != nil {
			return err
		}
		task.ID = newID()
		task.CreatorID = actor.ID
		task.CreatedAt = e.stamp()
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		recipients, err := assignees(ctx, tx, task)
		if err != nil {
			return err
		}
		if err := e.notify(ctx, tx, recipients, "New task assigned: "+task.Title, task.ID); err != nil {
			return err
		}
		out = task
		return e.emit(ctx, tx, events.TaskCreated, dep.ID, "task", task.ID, actor.ID, events.Payload{
			"title":            task.Title,
			"assigned_to_type": string(task.AssignedToType),
			"assigned_to_ids":  task.AssignedToIDs,
		})
	})
	return out, err
}

func (e Engine) manageableTask(ctx context.Context, tx repo.Tx, actor domain.Person, taskID string) (domain.Task, domain.Deployment, error) {
	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, domain.Deployment{}, err
	}
	dep, err := manageableDeployment(ctx, tx, actor, task.DeploymentID)
	if err != nil {
		return domain.Task{}, domain.Deployment{}, err
	}
	return task, dep, nil
}

// UpdateTask replaces the editable fields. Completion state is kept.
func (e Engine) UpdateTask(ctx context.Context, actorID, taskID string, in TaskInput) (domain.Task, error) {
	var out domain.Task
	err := e.mutate(ctx, "task.update", actorID, logrus.Fields{"task": taskID}, func(tx repo.Tx, actor domain.Person) error {
		cur, dep, err := e.manageableTask(ctx, tx, actor, taskID)
		if err != nil {
			return err
		}
		task, err := e.buildTask(ctx, tx, dep, in)
		if err != nil {
			return err
		}
		task.ID = cur.ID
		task.CreatorID = cur.CreatorID
		task.CreatedAt = cur.CreatedAt
		task.IsComplete = cur.IsComplete
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		out = task
		return e.emit(ctx, tx, events.TaskUpdated, dep.ID, "task", task.ID, actor.ID, events.Payload{"title": task.Title})
	})
	return out, err
}

// ToggleTask flips completion. Completing a recurring task schedules the
// next occurrence as a new open task.
func (e Engine) ToggleTask(ctx context.Context, actorID, taskID string) (ToggleResult, error) {
	var out ToggleResult
	err := e.mutate(ctx, "task.toggle", actorID, logrus.Fields{"task": taskID}, func(tx repo.Tx, actor domain.Person) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		dep, err := viewableDeployment(ctx, tx, actor, task.DeploymentID)
		if err != nil {
			return err
		}
		if task.IsComplete {
			task.IsComplete = false
			if err := tx.UpdateTask(ctx, task); err != nil {
				return err
			}
			out = ToggleResult{Task: task}
			return e.emit(ctx, tx, events.TaskReopened, dep.ID, "task", task.ID, actor.ID, nil)
		}

		task.IsComplete = true
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		out = ToggleResult{Task: task}

		if task.IsRecurring && task.Recurrence != domain.RecurrenceNone {
			start, err := time.Parse(time.RFC3339, task.Start)
			if err != nil {
				return fmt.Errorf("parse task start: %w", err)
			}
			next := task
			next.ID = newID()
			next.IsComplete = false
			next.Start = formatStart(NextOccurrence(start, task.Recurrence))
			next.AssignedToIDs = append([]string(nil), task.AssignedToIDs...)
			next.CreatedAt = e.stamp()
			if err := tx.InsertTask(ctx, next); err != nil {
				return err
			}
			out.Successor = &next
		}

		recipients, err := e.completionRecipients(ctx, tx, task, dep)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("Task completed: \"%s\" by %s.", task.Title, actor.Name)
		if err := e.notify(ctx, tx, recipients, msg, task.ID); err != nil {
			return err
		}
		payload := events.Payload{"title": task.Title}
		if out.Successor != nil {
			payload["successor_id"] = out.Successor.ID
			payload["successor_start"] = out.Successor.Start
		}
		return e.emit(ctx, tx, events.TaskComplete, dep.ID, "task", task.ID, actor.ID, payload)
	})
	return out, err
}

func (e Engine) completionRecipients(ctx context.Context, tx repo.Tx, task domain.Task, dep domain.Deployment) ([]string, error) {
	if task.NotifyOnComplete != domain.NotifyAllManagers {
		if _, err := tx.GetPerson(ctx, task.CreatorID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []string{task.CreatorID}, nil
	}
	managers, err := tx.ListPeople(ctx, repo.PersonFilter{
		FrameworkID: dep.FrameworkID,
		Roles:       []domain.Role{domain.RoleManager, domain.RoleAdmin},
	})
	if err != nil {
		return nil, err
	}
	admins, err := tx.ListPeople(ctx, repo.PersonFilter{Roles: []domain.Role{domain.RoleAdmin}})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(managers)+len(admins))
	for _, p := range append(managers, admins...) {
		ids = append(ids, p.ID)
	}
	return dedupe(ids), nil
}

func (e Engine) DeleteTask(ctx context.Context, actorID, taskID string) error {
	return e.mutate(ctx, "task.delete", actorID, logrus.Fields{"task": taskID}, func(tx repo.Tx, actor domain.Person) error {
		task, dep, err := e.manageableTask(ctx, tx, actor, taskID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, task.ID); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.TaskDeleted, dep.ID, "task", task.ID, actor.ID, events.Payload{"title": task.Title})
	})
}

// TaskAssignees returns the people a task is assigned to, expanding teams.
func (e Engine) TaskAssignees(ctx context.Context, taskID string) ([]domain.Person, error) {
	var out []domain.Person
	err := e.Store.View(ctx, func(tx repo.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		ids, err := assignees(ctx, tx, task)
		if err != nil {
			return err
		}
		out = make([]domain.Person, 0, len(ids))
		for _, id := range ids {
			p, err := tx.GetPerson(ctx, id)
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// ListTasksForPerson returns tasks assigned to the person directly or via a
// team, across the deployments they take part in.
func (e Engine) ListTasksForPerson(ctx context.Context, actorID, personID string) ([]domain.Task, error) {
	var out []domain.Task
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		target, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if !canSeePerson(actor, target) {
			return domain.PermissionDenied("person.view")
		}
		deps, err := tx.ListDeployments(ctx, repo.DeploymentFilter{ParticipantID: target.ID})
		if err != nil {
			return err
		}
		out = []domain.Task{}
		for _, d := range deps {
			tasks, err := tx.ListTasks(ctx, d.ID)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				ids, err := assignees(ctx, tx, t)
				if err != nil {
					return err
				}
				for _, id := range ids {
					if id == target.ID {
						out = append(out, t)
						break
					}
				}
			}
		}
		return nil
	})
	return out, err
}

// ListTasks returns the tasks of one deployment.
func (e Engine) ListTasks(ctx context.Context, actorID, deploymentID string) ([]domain.Task, error) {
	var out []domain.Task
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		dep, err := viewableDeployment(ctx, tx, actor, deploymentID)
		if err != nil {
			return err
		}
		out, err = tx.ListTasks(ctx, dep.ID)
		return err
	})
	return out, err
}
