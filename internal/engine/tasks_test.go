package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNextOccurrence(t *testing.T) {
	start := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		rec  domain.Recurrence
		want time.Time
	}{
		{domain.RecurrenceDaily, time.Date(2024, 1, 16, 9, 30, 0, 0, time.UTC)},
		{domain.RecurrenceWeekly, time.Date(2024, 1, 22, 9, 30, 0, 0, time.UTC)},
		{domain.RecurrenceMonthly, time.Date(2024, 2, 15, 9, 30, 0, 0, time.UTC)},
		{domain.RecurrenceNone, start},
	}
	for _, tc := range cases {
		t.Run(string(tc.rec), func(t *testing.T) {
			assert.Equal(t, tc.want, engine.NextOccurrence(start, tc.rec))
		})
	}
}

func TestCompletingWeeklyTaskSchedulesSuccessor(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		s := env.person(t, "s", domain.RoleMember)
		d := env.deployment(t, "D", s)

		task, err := env.Engine.CreateTask(env.Ctx, env.Admin.ID, d.ID, engine.TaskInput{
			Title:         "Patrol",
			Start:         jan1,
			IsRecurring:   true,
			Recurrence:    domain.RecurrenceWeekly,
			AssignedToIDs: []string{s.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01T00:00:00Z", task.Start)

		res, err := env.Engine.ToggleTask(env.Ctx, s.ID, task.ID)
		require.NoError(t, err)
		assert.True(t, res.Task.IsComplete)
		require.NotNil(t, res.Successor)
		assert.Equal(t, "2024-01-08T00:00:00Z", res.Successor.Start)
		assert.False(t, res.Successor.IsComplete)
		assert.NotEqual(t, task.ID, res.Successor.ID)
		assert.Equal(t, []string{s.ID}, res.Successor.AssignedToIDs)

		tasks, err := env.Engine.ListTasks(env.Ctx, s.ID, d.ID)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, task.ID, tasks[0].ID)
		assert.True(t, tasks[0].IsComplete)
		assert.False(t, tasks[1].IsComplete)

		// reopening does not schedule another one
		res, err = env.Engine.ToggleTask(env.Ctx, s.ID, task.ID)
		require.NoError(t, err)
		assert.False(t, res.Task.IsComplete)
		assert.Nil(t, res.Successor)
	})
}

func TestTaskNotifications(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		s := env.person(t, "s", domain.RoleMember)
		d := env.deployment(t, "D", s)

		task, err := env.Engine.CreateTask(env.Ctx, env.Admin.ID, d.ID, engine.TaskInput{
			Title:         "Inspect",
			Start:         jan1,
			AssignedToIDs: []string{s.ID},
		})
		require.NoError(t, err)

		inbox, err := env.Engine.ListNotifications(env.Ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, "New task assigned: Inspect", inbox[0].Message)
		assert.False(t, inbox[0].Read)

		err = env.Engine.MarkNotificationRead(env.Ctx, env.Admin.ID, inbox[0].ID)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
		require.NoError(t, env.Engine.MarkNotificationRead(env.Ctx, s.ID, inbox[0].ID))
		inbox, err = env.Engine.ListNotifications(env.Ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, inbox[0].Read)

		res, err := env.Engine.ToggleTask(env.Ctx, s.ID, task.ID)
		require.NoError(t, err)
		assert.Nil(t, res.Successor)

		creator, err := env.Engine.ListNotifications(env.Ctx, env.Admin.ID)
		require.NoError(t, err)
		require.Len(t, creator, 1)
		assert.Equal(t, `Task completed: "Inspect" by s.`, creator[0].Message)
		require.NotNil(t, creator[0].TaskID)
		assert.Equal(t, task.ID, *creator[0].TaskID)
	})
}

func TestCompletionNotifiesAllManagers(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := env.person(t, "m", domain.RoleManager)
		s := env.person(t, "s", domain.RoleMember)
		d := env.deployment(t, "D", s)

		task, err := env.Engine.CreateTask(env.Ctx, env.Admin.ID, d.ID, engine.TaskInput{
			Title:            "Report",
			Start:            jan1,
			AssignedToIDs:    []string{s.ID},
			NotifyOnComplete: domain.NotifyAllManagers,
		})
		require.NoError(t, err)
		_, err = env.Engine.ToggleTask(env.Ctx, s.ID, task.ID)
		require.NoError(t, err)

		for _, p := range []domain.Person{m, env.Admin} {
			inbox, err := env.Engine.ListNotifications(env.Ctx, p.ID)
			require.NoError(t, err)
			require.Len(t, inbox, 1, p.Name)
			assert.Contains(t, inbox[0].Message, "Task completed")
		}
	})
}

func TestTeamTaskResolvesMembers(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		a := env.person(t, "a", domain.RoleMember)
		b := env.person(t, "b", domain.RoleMember)
		c := env.person(t, "c", domain.RoleMember)
		d := env.deployment(t, "D", a, b, c)
		team, err := env.Engine.SaveTeam(env.Ctx, env.Admin.ID, d.ID, engine.TeamInput{Name: "Alpha", MemberIDs: []string{a.ID, b.ID}})
		require.NoError(t, err)

		task, err := env.Engine.CreateTask(env.Ctx, env.Admin.ID, d.ID, engine.TaskInput{
			Title:          "Sweep",
			Start:          jan1,
			AssignedToType: domain.AssignTeam,
			AssignedToIDs:  []string{team.ID},
		})
		require.NoError(t, err)

		people, err := env.Engine.TaskAssignees(env.Ctx, task.ID)
		require.NoError(t, err)
		ids := []string{}
		for _, p := range people {
			ids = append(ids, p.ID)
		}
		assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

		mine, err := env.Engine.ListTasksForPerson(env.Ctx, a.ID, a.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, task.ID, mine[0].ID)

		theirs, err := env.Engine.ListTasksForPerson(env.Ctx, c.ID, c.ID)
		require.NoError(t, err)
		assert.Empty(t, theirs)
	})
}

func TestTaskValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		s := env.person(t, "s", domain.RoleMember)
		outsider := env.person(t, "o", domain.RoleMember)
		d := env.deployment(t, "D", s)

		cases := map[string]engine.TaskInput{
			"no title":          {Start: jan1, AssignedToIDs: []string{s.ID}},
			"no start":          {Title: "x", AssignedToIDs: []string{s.ID}},
			"no assignee":       {Title: "x", Start: jan1},
			"not a participant": {Title: "x", Start: jan1, AssignedToIDs: []string{outsider.ID}},
			"recurring w/o rec": {Title: "x", Start: jan1, IsRecurring: true, AssignedToIDs: []string{s.ID}},
			"bad recurrence":    {Title: "x", Start: jan1, Recurrence: "yearly", AssignedToIDs: []string{s.ID}},
		}
		for name, in := range cases {
			_, err := env.Engine.CreateTask(env.Ctx, env.Admin.ID, d.ID, in)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument, name)
		}

		_, err := env.Engine.CreateTask(env.Ctx, outsider.ID, d.ID, engine.TaskInput{Title: "x", Start: jan1, AssignedToIDs: []string{s.ID}})
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	})
}

func TestOnlyManagersEditTasks(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		s := env.person(t, "s", domain.RoleMember)
		d := env.deployment(t, "D", s)
		task, err := env.Engine.CreateTask(env.Ctx, s.ID, d.ID, engine.TaskInput{Title: "Self", Start: jan1, AssignedToIDs: []string{s.ID}})
		require.NoError(t, err)

		_, err = env.Engine.UpdateTask(env.Ctx, s.ID, task.ID, engine.TaskInput{Title: "Other", Start: jan1, AssignedToIDs: []string{s.ID}})
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
		err = env.Engine.DeleteTask(env.Ctx, s.ID, task.ID)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)

		updated, err := env.Engine.UpdateTask(env.Ctx, env.Admin.ID, task.ID, engine.TaskInput{Title: "Other", Start: jan1, AllDay: true, AssignedToIDs: []string{s.ID}})
		require.NoError(t, err)
		assert.Equal(t, "Other", updated.Title)
		assert.Equal(t, s.ID, updated.CreatorID)

		require.NoError(t, env.Engine.DeleteTask(env.Ctx, env.Admin.ID, task.ID))
		tasks, err := env.Engine.ListTasks(env.Ctx, env.Admin.ID, d.ID)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}
