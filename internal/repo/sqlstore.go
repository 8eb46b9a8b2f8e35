package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/events"
)

// SQLStore persists state in SQLite through sqlx.
type SQLStore struct {
	DB     *sqlx.DB
	Events events.Writer
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{DB: db, Events: events.Writer{Now: time.Now}}
}

func (s *SQLStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(sqlTx{tx: tx, events: s.Events}); err != nil {
		return err
	}
	return tx.Commit()
}

// View runs fn in a transaction that is always rolled back.
func (s *SQLStore) View(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(sqlTx{tx: tx, events: s.Events})
}

func (s *SQLStore) Close() error { return s.DB.Close() }

type sqlTx struct {
	tx     *sqlx.Tx
	events events.Writer
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(entity, id)
	}
	return err
}

func mustAffect(res sql.Result, err error, entity, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound(entity, id)
	}
	return nil
}

func marshalIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal ids: %w", err)
	}
	return string(b), nil
}

func unmarshalIDs(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("unmarshal ids: %w", err)
	}
	return out, nil
}

// --- frameworks ---

func (t sqlTx) InsertFramework(ctx context.Context, f domain.Framework) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO frameworks(id,name,created_at) VALUES (?,?,?)`, f.ID, f.Name, f.CreatedAt)
	return err
}

func (t sqlTx) GetFramework(ctx context.Context, id string) (domain.Framework, error) {
	var f domain.Framework
	err := t.tx.GetContext(ctx, &f, `SELECT id,name,created_at FROM frameworks WHERE id=?`, id)
	return f, notFound(err, "framework", id)
}

func (t sqlTx) ListFrameworks(ctx context.Context) ([]domain.Framework, error) {
	var out []domain.Framework
	err := t.tx.SelectContext(ctx, &out, `SELECT id,name,created_at FROM frameworks ORDER BY created_at, rowid`)
	return out, err
}

// --- deployments ---

type deploymentRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	FrameworkID string `db:"framework_id"`
	CreatedAt   string `db:"created_at"`
}

type participantRow struct {
	DeploymentID string `db:"deployment_id"`
	PersonID     string `db:"person_id"`
}

func (t sqlTx) InsertDeployment(ctx context.Context, d domain.Deployment) error {
	if _, err := t.tx.ExecContext(ctx, `INSERT INTO deployments(id,name,framework_id,created_at) VALUES (?,?,?,?)`,
		d.ID, d.Name, d.FrameworkID, d.CreatedAt); err != nil {
		return err
	}
	for _, pid := range d.ParticipantIDs {
		if err := t.AddParticipant(ctx, d.ID, pid); err != nil {
			return err
		}
	}
	return nil
}

func (t sqlTx) UpdateDeployment(ctx context.Context, d domain.Deployment) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE deployments SET name=? WHERE id=?`, d.Name, d.ID)
	if err := mustAffect(res, err, "deployment", d.ID); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM deployment_participants WHERE deployment_id=?`, d.ID); err != nil {
		return err
	}
	for _, pid := range d.ParticipantIDs {
		if err := t.AddParticipant(ctx, d.ID, pid); err != nil {
			return err
		}
	}
	return nil
}

func (t sqlTx) GetDeployment(ctx context.Context, id string) (domain.Deployment, error) {
	var row deploymentRow
	if err := t.tx.GetContext(ctx, &row, `SELECT id,name,framework_id,created_at FROM deployments WHERE id=?`, id); err != nil {
		return domain.Deployment{}, notFound(err, "deployment", id)
	}
	var ids []string
	if err := t.tx.SelectContext(ctx, &ids, `SELECT person_id FROM deployment_participants WHERE deployment_id=? ORDER BY rowid`, id); err != nil {
		return domain.Deployment{}, err
	}
	return deploymentFromRow(row, ids), nil
}

func (t sqlTx) ListDeployments(ctx context.Context, f DeploymentFilter) ([]domain.Deployment, error) {
	var (
		where []string
		args  []any
	)
	if f.FrameworkID != "" {
		where = append(where, "framework_id=?")
		args = append(args, f.FrameworkID)
	}
	if f.ParticipantID != "" {
		where = append(where, "id IN (SELECT deployment_id FROM deployment_participants WHERE person_id=?)")
		args = append(args, f.ParticipantID)
	}
	q := `SELECT id,name,framework_id,created_at FROM deployments`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, rowid"
	var rows []deploymentRow
	if err := t.tx.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	var parts []participantRow
	if err := t.tx.SelectContext(ctx, &parts, `SELECT deployment_id,person_id FROM deployment_participants ORDER BY rowid`); err != nil {
		return nil, err
	}
	byDeployment := map[string][]string{}
	for _, p := range parts {
		byDeployment[p.DeploymentID] = append(byDeployment[p.DeploymentID], p.PersonID)
	}
	out := make([]domain.Deployment, 0, len(rows))
	for _, r := range rows {
		out = append(out, deploymentFromRow(r, byDeployment[r.ID]))
	}
	return out, nil
}

func deploymentFromRow(r deploymentRow, ids []string) domain.Deployment {
	if ids == nil {
		ids = []string{}
	}
	return domain.Deployment{ID: r.ID, Name: r.Name, FrameworkID: r.FrameworkID, ParticipantIDs: ids, CreatedAt: r.CreatedAt}
}

func (t sqlTx) DeleteDeployment(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM deployments WHERE id=?`, id)
	return mustAffect(res, err, "deployment", id)
}

func (t sqlTx) AddParticipant(ctx context.Context, deploymentID, personID string) error {
	_, err := t.tx.ExecContext(ctx, `INSERT OR IGNORE INTO deployment_participants(deployment_id,person_id) VALUES (?,?)`, deploymentID, personID)
	return err
}

func (t sqlTx) RemoveParticipant(ctx context.Context, deploymentID, personID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM deployment_participants WHERE deployment_id=? AND person_id=?`, deploymentID, personID)
	return err
}

// --- people ---

const personColumns = `id,name,personal_number,role,framework_id,password_hash,is_primary_admin,created_at`

func (t sqlTx) InsertPerson(ctx context.Context, p domain.Person) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO people(`+personColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.PersonalNumber, string(p.Role), p.FrameworkID, p.PasswordHash, p.IsPrimaryAdmin, p.CreatedAt)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return domain.Conflict("personal number %s already exists", p.PersonalNumber)
	}
	return err
}

func (t sqlTx) UpdatePerson(ctx context.Context, p domain.Person) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE people SET name=?,personal_number=?,role=?,framework_id=?,password_hash=?,is_primary_admin=? WHERE id=?`,
		p.Name, p.PersonalNumber, string(p.Role), p.FrameworkID, p.PasswordHash, p.IsPrimaryAdmin, p.ID)
	return mustAffect(res, err, "person", p.ID)
}

func (t sqlTx) GetPerson(ctx context.Context, id string) (domain.Person, error) {
	var p domain.Person
	err := t.tx.GetContext(ctx, &p, `SELECT `+personColumns+` FROM people WHERE id=?`, id)
	return p, notFound(err, "person", id)
}

func (t sqlTx) GetPersonByPersonalNumber(ctx context.Context, personalNumber string) (domain.Person, error) {
	var p domain.Person
	err := t.tx.GetContext(ctx, &p, `SELECT `+personColumns+` FROM people WHERE personal_number=?`, personalNumber)
	return p, notFound(err, "person", personalNumber)
}

func (t sqlTx) ListPeople(ctx context.Context, f PersonFilter) ([]domain.Person, error) {
	var (
		where []string
		args  []any
	)
	if f.FrameworkID != "" {
		where = append(where, "framework_id=?")
		args = append(args, f.FrameworkID)
	}
	if len(f.Roles) > 0 {
		roles := make([]string, len(f.Roles))
		for i, r := range f.Roles {
			roles[i] = string(r)
		}
		clause, inArgs, err := sqlx.In("role IN (?)", roles)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
		args = append(args, inArgs...)
	}
	q := `SELECT ` + personColumns + ` FROM people`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, rowid"
	var out []domain.Person
	err := t.tx.SelectContext(ctx, &out, q, args...)
	return out, err
}

func (t sqlTx) DeletePerson(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM people WHERE id=?`, id)
	return mustAffect(res, err, "person", id)
}

// --- inventory ---

type itemRow struct {
	ID           string `db:"id"`
	DeploymentID string `db:"deployment_id"`
	Name         string `db:"name"`
	NameKey      string `db:"name_key"`
	TracksSerial bool   `db:"tracks_serial"`
	Quantity     int    `db:"quantity"`
	SerialsJSON  string `db:"serials_json"`
	CreatedAt    string `db:"created_at"`
}

const itemColumns = `id,deployment_id,name,name_key,tracks_serial,quantity,serials_json,created_at`

func (r itemRow) item() (domain.InventoryItem, error) {
	serials, err := unmarshalIDs(r.SerialsJSON)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return domain.InventoryItem{
		ID:           r.ID,
		DeploymentID: r.DeploymentID,
		Name:         r.Name,
		TracksSerial: r.TracksSerial,
		Quantity:     r.Quantity,
		Serials:      serials,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func (t sqlTx) InsertItem(ctx context.Context, it domain.InventoryItem) error {
	serials, err := marshalIDs(it.Serials)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO inventory_items(`+itemColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		it.ID, it.DeploymentID, it.Name, domain.ItemKey(it.Name), it.TracksSerial, it.Quantity, serials, it.CreatedAt)
	return err
}

func (t sqlTx) UpdateItem(ctx context.Context, it domain.InventoryItem) error {
	serials, err := marshalIDs(it.Serials)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE inventory_items SET name=?,name_key=?,quantity=?,serials_json=? WHERE id=?`,
		it.Name, domain.ItemKey(it.Name), it.Quantity, serials, it.ID)
	return mustAffect(res, err, "item", it.ID)
}

func (t sqlTx) GetItem(ctx context.Context, id string) (domain.InventoryItem, error) {
	var row itemRow
	if err := t.tx.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM inventory_items WHERE id=?`, id); err != nil {
		return domain.InventoryItem{}, notFound(err, "item", id)
	}
	return row.item()
}

func (t sqlTx) FindItem(ctx context.Context, deploymentID, name string, tracksSerial bool) (domain.InventoryItem, error) {
	var row itemRow
	err := t.tx.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM inventory_items WHERE deployment_id=? AND name_key=? AND tracks_serial=?`,
		deploymentID, domain.ItemKey(name), tracksSerial)
	if err != nil {
		return domain.InventoryItem{}, notFound(err, "item", name)
	}
	return row.item()
}

func (t sqlTx) ListItems(ctx context.Context, deploymentID string) ([]domain.InventoryItem, error) {
	q := `SELECT ` + itemColumns + ` FROM inventory_items`
	var args []any
	if deploymentID != "" {
		q += ` WHERE deployment_id=?`
		args = append(args, deploymentID)
	}
	q += ` ORDER BY created_at, rowid`
	var rows []itemRow
	if err := t.tx.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]domain.InventoryItem, 0, len(rows))
	for _, r := range rows {
		it, err := r.item()
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (t sqlTx) DeleteItem(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM inventory_items WHERE id=?`, id)
	return mustAffect(res, err, "item", id)
}

// --- assigned items ---

const assignedColumns = `id,person_id,name,quantity,serial,provider,inventory_item_id,deployment_id,assigned_at`

func (t sqlTx) InsertAssigned(ctx context.Context, a domain.AssignedItem) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO assigned_items(`+assignedColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.PersonID, a.Name, a.Quantity, a.Serial, a.Provider, a.InventoryItemID, a.DeploymentID, a.AssignedAt)
	return err
}

func (t sqlTx) UpdateAssigned(ctx context.Context, a domain.AssignedItem) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE assigned_items SET quantity=?,inventory_item_id=?,deployment_id=? WHERE id=?`,
		a.Quantity, a.InventoryItemID, a.DeploymentID, a.ID)
	return mustAffect(res, err, "assigned item", a.ID)
}

func (t sqlTx) GetAssigned(ctx context.Context, id string) (domain.AssignedItem, error) {
	var a domain.AssignedItem
	err := t.tx.GetContext(ctx, &a, `SELECT `+assignedColumns+` FROM assigned_items WHERE id=?`, id)
	return a, notFound(err, "assigned item", id)
}

func (t sqlTx) ListAssigned(ctx context.Context, f AssignedFilter) ([]domain.AssignedItem, error) {
	var (
		where []string
		args  []any
	)
	if f.PersonID != "" {
		where = append(where, "person_id=?")
		args = append(args, f.PersonID)
	}
	if f.InventoryItemID != "" {
		where = append(where, "inventory_item_id=?")
		args = append(args, f.InventoryItemID)
	}
	if f.DeploymentID != "" {
		where = append(where, "deployment_id=?")
		args = append(args, f.DeploymentID)
	}
	if f.NoSerial {
		where = append(where, "(serial IS NULL OR serial='')")
	}
	q := `SELECT ` + assignedColumns + ` FROM assigned_items`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY assigned_at, rowid"
	var out []domain.AssignedItem
	err := t.tx.SelectContext(ctx, &out, q, args...)
	return out, err
}

func (t sqlTx) DeleteAssigned(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM assigned_items WHERE id=?`, id)
	return mustAffect(res, err, "assigned item", id)
}

// --- teams ---

type teamRow struct {
	ID            string `db:"id"`
	DeploymentID  string `db:"deployment_id"`
	Name          string `db:"name"`
	MemberIDsJSON string `db:"member_ids_json"`
	LeaderID      string `db:"leader_id"`
}

func (r teamRow) team() (domain.Team, error) {
	members, err := unmarshalIDs(r.MemberIDsJSON)
	if err != nil {
		return domain.Team{}, err
	}
	return domain.Team{ID: r.ID, DeploymentID: r.DeploymentID, Name: r.Name, MemberIDs: members, LeaderID: r.LeaderID}, nil
}

func (t sqlTx) InsertTeam(ctx context.Context, tm domain.Team) error {
	members, err := marshalIDs(tm.MemberIDs)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO teams(id,deployment_id,name,member_ids_json,leader_id) VALUES (?,?,?,?,?)`,
		tm.ID, tm.DeploymentID, tm.Name, members, tm.LeaderID)
	return err
}

func (t sqlTx) UpdateTeam(ctx context.Context, tm domain.Team) error {
	members, err := marshalIDs(tm.MemberIDs)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE teams SET name=?,member_ids_json=?,leader_id=? WHERE id=?`, tm.Name, members, tm.LeaderID, tm.ID)
	return mustAffect(res, err, "team", tm.ID)
}

func (t sqlTx) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	var row teamRow
	if err := t.tx.GetContext(ctx, &row, `SELECT id,deployment_id,name,member_ids_json,leader_id FROM teams WHERE id=?`, id); err != nil {
		return domain.Team{}, notFound(err, "team", id)
	}
	return row.team()
}

func (t sqlTx) ListTeams(ctx context.Context, deploymentID string) ([]domain.Team, error) {
	q := `SELECT id,deployment_id,name,member_ids_json,leader_id FROM teams`
	var args []any
	if deploymentID != "" {
		q += ` WHERE deployment_id=?`
		args = append(args, deploymentID)
	}
	q += ` ORDER BY rowid`
	var rows []teamRow
	if err := t.tx.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]domain.Team, 0, len(rows))
	for _, r := range rows {
		tm, err := r.team()
		if err != nil {
			return nil, err
		}
		out = append(out, tm)
	}
	return out, nil
}

func (t sqlTx) DeleteTeam(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM teams WHERE id=?`, id)
	return mustAffect(res, err, "team", id)
}

// --- tasks ---

type taskRow struct {
	ID                string `db:"id"`
	DeploymentID      string `db:"deployment_id"`
	Title             string `db:"title"`
	Description       string `db:"description"`
	Start             string `db:"start"`
	AllDay            bool   `db:"all_day"`
	IsRecurring       bool   `db:"is_recurring"`
	Recurrence        string `db:"recurrence"`
	AssignedToType    string `db:"assigned_to_type"`
	AssignedToIDsJSON string `db:"assigned_to_ids_json"`
	CreatorID         string `db:"creator_id"`
	IsComplete        bool   `db:"is_complete"`
	NotifyOnComplete  string `db:"notify_on_complete"`
	CreatedAt         string `db:"created_at"`
}

const taskColumns = `id,deployment_id,title,description,start,all_day,is_recurring,recurrence,assigned_to_type,assigned_to_ids_json,creator_id,is_complete,notify_on_complete,created_at`

func (r taskRow) task() (domain.Task, error) {
	ids, err := unmarshalIDs(r.AssignedToIDsJSON)
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:               r.ID,
		DeploymentID:     r.DeploymentID,
		Title:            r.Title,
		Description:      r.Description,
		Start:            r.Start,
		AllDay:           r.AllDay,
		IsRecurring:      r.IsRecurring,
		Recurrence:       domain.Recurrence(r.Recurrence),
		AssignedToType:   domain.AssigneeType(r.AssignedToType),
		AssignedToIDs:    ids,
		CreatorID:        r.CreatorID,
		IsComplete:       r.IsComplete,
		NotifyOnComplete: domain.NotifyPolicy(r.NotifyOnComplete),
		CreatedAt:        r.CreatedAt,
	}, nil
}

func (t sqlTx) InsertTask(ctx context.Context, tk domain.Task) error {
	ids, err := marshalIDs(tk.AssignedToIDs)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		tk.ID, tk.DeploymentID, tk.Title, tk.Description, tk.Start, tk.AllDay, tk.IsRecurring, string(tk.Recurrence),
		string(tk.AssignedToType), ids, tk.CreatorID, tk.IsComplete, string(tk.NotifyOnComplete), tk.CreatedAt)
	return err
}

func (t sqlTx) UpdateTask(ctx context.Context, tk domain.Task) error {
	ids, err := marshalIDs(tk.AssignedToIDs)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE tasks SET title=?,description=?,start=?,all_day=?,is_recurring=?,recurrence=?,assigned_to_type=?,assigned_to_ids_json=?,is_complete=?,notify_on_complete=? WHERE id=?`,
		tk.Title, tk.Description, tk.Start, tk.AllDay, tk.IsRecurring, string(tk.Recurrence), string(tk.AssignedToType), ids,
		tk.IsComplete, string(tk.NotifyOnComplete), tk.ID)
	return mustAffect(res, err, "task", tk.ID)
}

func (t sqlTx) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var row taskRow
	if err := t.tx.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id); err != nil {
		return domain.Task{}, notFound(err, "task", id)
	}
	return row.task()
}

func (t sqlTx) ListTasks(ctx context.Context, deploymentID string) ([]domain.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if deploymentID != "" {
		q += ` WHERE deployment_id=?`
		args = append(args, deploymentID)
	}
	q += ` ORDER BY start, rowid`
	var rows []taskRow
	if err := t.tx.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		tk, err := r.task()
		if err != nil {
			return nil, err
		}
		out = append(out, tk)
	}
	return out, nil
}

func (t sqlTx) DeleteTask(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	return mustAffect(res, err, "task", id)
}

// --- notifications ---

const notificationColumns = `id,recipient_id,message,is_read,created_at,task_id`

func (t sqlTx) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO notifications(`+notificationColumns+`) VALUES (?,?,?,?,?,?)`,
		n.ID, n.RecipientID, n.Message, n.Read, n.CreatedAt, n.TaskID)
	return err
}

func (t sqlTx) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	var n domain.Notification
	err := t.tx.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id)
	return n, notFound(err, "notification", id)
}

func (t sqlTx) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE id=?`, id)
	return mustAffect(res, err, "notification", id)
}

func (t sqlTx) ListNotifications(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	q := `SELECT ` + notificationColumns + ` FROM notifications`
	var args []any
	if recipientID != "" {
		q += ` WHERE recipient_id=?`
		args = append(args, recipientID)
	}
	q += ` ORDER BY created_at DESC, rowid DESC`
	var out []domain.Notification
	err := t.tx.SelectContext(ctx, &out, q, args...)
	return out, err
}

// --- events ---

type eventRow struct {
	ID           int64   `db:"id"`
	TS           string  `db:"ts"`
	Type         string  `db:"type"`
	DeploymentID *string `db:"deployment_id"`
	EntityKind   string  `db:"entity_kind"`
	EntityID     *string `db:"entity_id"`
	ActorID      string  `db:"actor_id"`
	PayloadJSON  string  `db:"payload_json"`
}

func (t sqlTx) AppendEvent(ctx context.Context, evt domain.Event) error {
	return t.events.Append(ctx, t.tx, evt)
}

func (t sqlTx) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.DeploymentID != "" {
		where = append(where, "deployment_id=?")
		args = append(args, f.DeploymentID)
	}
	if f.Type != "" {
		where = append(where, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		where = append(where, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		where = append(where, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.BeforeID > 0 {
		where = append(where, "id<?")
		args = append(args, f.BeforeID)
	}
	q := `SELECT id,ts,type,deployment_id,entity_kind,entity_id,actor_id,payload_json FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, normalizeLimit(f.Limit))
	var rows []eventRow
	if err := t.tx.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Event{
			ID:           r.ID,
			TS:           r.TS,
			Type:         r.Type,
			DeploymentID: r.DeploymentID,
			EntityKind:   r.EntityKind,
			EntityID:     r.EntityID,
			ActorID:      r.ActorID,
			Payload:      events.DecodePayload(r.PayloadJSON),
		})
	}
	return out, nil
}

func (t sqlTx) Reset(ctx context.Context) error {
	for _, table := range []string{
		"notifications", "tasks", "teams", "assigned_items", "inventory_items",
		"deployment_participants", "deployments", "people", "frameworks",
	} {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}
