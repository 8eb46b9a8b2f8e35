package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/ShovalB85/RasApp/internal/domain"
)

// table keeps rows by id and remembers insertion order.
type table[T any] struct {
	rows  map[string]T
	order []string
}

func newTable[T any]() table[T] {
	return table[T]{rows: map[string]T{}}
}

func (t table[T]) clone(cp func(T) T) table[T] {
	out := table[T]{rows: make(map[string]T, len(t.rows)), order: append([]string(nil), t.order...)}
	for k, v := range t.rows {
		out.rows[k] = cp(v)
	}
	return out
}

func (t *table[T]) insert(id string, v T) error {
	if _, ok := t.rows[id]; ok {
		return domain.Conflict("duplicate id %s", id)
	}
	t.rows[id] = v
	t.order = append(t.order, id)
	return nil
}

func (t *table[T]) update(id string, v T) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	t.rows[id] = v
	return true
}

func (t *table[T]) remove(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	for i, x := range t.order {
		if x == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func (t table[T]) list(keep func(T) bool) []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		v := t.rows[id]
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

type memoryState struct {
	frameworks    table[domain.Framework]
	deployments   table[domain.Deployment]
	people        table[domain.Person]
	items         table[domain.InventoryItem]
	assigned      table[domain.AssignedItem]
	teams         table[domain.Team]
	tasks         table[domain.Task]
	notifications table[domain.Notification]
	events        []domain.Event
	nextEventID   int64
}

func newMemoryState() memoryState {
	return memoryState{
		frameworks:    newTable[domain.Framework](),
		deployments:   newTable[domain.Deployment](),
		people:        newTable[domain.Person](),
		items:         newTable[domain.InventoryItem](),
		assigned:      newTable[domain.AssignedItem](),
		teams:         newTable[domain.Team](),
		tasks:         newTable[domain.Task](),
		notifications: newTable[domain.Notification](),
		nextEventID:   1,
	}
}

func (s memoryState) clone() memoryState {
	return memoryState{
		frameworks:    s.frameworks.clone(cloneFramework),
		deployments:   s.deployments.clone(cloneDeployment),
		people:        s.people.clone(clonePerson),
		items:         s.items.clone(cloneItem),
		assigned:      s.assigned.clone(cloneAssigned),
		teams:         s.teams.clone(cloneTeam),
		tasks:         s.tasks.clone(cloneTask),
		notifications: s.notifications.clone(cloneNotification),
		events:        append([]domain.Event(nil), s.events...),
		nextEventID:   s.nextEventID,
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string{}, in...)
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFramework(f domain.Framework) domain.Framework {
	f.Persons = nil
	return f
}

func cloneDeployment(d domain.Deployment) domain.Deployment {
	d.ParticipantIDs = cloneStrings(d.ParticipantIDs)
	return d
}

func clonePerson(p domain.Person) domain.Person {
	p.PasswordHash = clonePtr(p.PasswordHash)
	p.AssignedItems = nil
	return p
}

func cloneItem(it domain.InventoryItem) domain.InventoryItem {
	it.Serials = cloneStrings(it.Serials)
	return it
}

func cloneAssigned(a domain.AssignedItem) domain.AssignedItem {
	a.Serial = clonePtr(a.Serial)
	a.InventoryItemID = clonePtr(a.InventoryItemID)
	a.DeploymentID = clonePtr(a.DeploymentID)
	return a
}

func cloneTeam(t domain.Team) domain.Team {
	t.MemberIDs = cloneStrings(t.MemberIDs)
	return t
}

func cloneTask(t domain.Task) domain.Task {
	t.AssignedToIDs = cloneStrings(t.AssignedToIDs)
	return t
}

func cloneNotification(n domain.Notification) domain.Notification {
	n.TaskID = clonePtr(n.TaskID)
	return n
}

func cloneEvent(e domain.Event) domain.Event {
	e.DeploymentID = clonePtr(e.DeploymentID)
	e.EntityID = clonePtr(e.EntityID)
	payload := make(map[string]any, len(e.Payload))
	for k, v := range e.Payload {
		payload[k] = v
	}
	e.Payload = payload
	return e
}

// MemStore is an in-memory Store. A transaction works on a private copy of
// the state that replaces the shared one only when fn succeeds.
type MemStore struct {
	mu    sync.RWMutex
	state memoryState
}

func NewMemStore() *MemStore {
	return &MemStore{state: newMemoryState()}
}

func (s *MemStore) InTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{state: s.state.clone()})
}

func (s *MemStore) Close() error { return nil }

type memTx struct {
	state memoryState
}

func byCreated[T any](rows []T, key func(T) string) []T {
	sort.SliceStable(rows, func(i, j int) bool { return key(rows[i]) < key(rows[j]) })
	return rows
}

func ptrEq(p *string, v string) bool { return p != nil && *p == v }

// --- frameworks ---

func (t *memTx) InsertFramework(_ context.Context, f domain.Framework) error {
	return t.state.frameworks.insert(f.ID, cloneFramework(f))
}

func (t *memTx) GetFramework(_ context.Context, id string) (domain.Framework, error) {
	f, ok := t.state.frameworks.rows[id]
	if !ok {
		return domain.Framework{}, domain.NotFound("framework", id)
	}
	return cloneFramework(f), nil
}

func (t *memTx) ListFrameworks(_ context.Context) ([]domain.Framework, error) {
	out := t.state.frameworks.list(nil)
	return byCreated(out, func(f domain.Framework) string { return f.CreatedAt }), nil
}

// --- deployments ---

func (t *memTx) InsertDeployment(_ context.Context, d domain.Deployment) error {
	return t.state.deployments.insert(d.ID, cloneDeployment(d))
}

func (t *memTx) UpdateDeployment(_ context.Context, d domain.Deployment) error {
	cur, ok := t.state.deployments.rows[d.ID]
	if !ok {
		return domain.NotFound("deployment", d.ID)
	}
	cur.Name = d.Name
	cur.ParticipantIDs = cloneStrings(d.ParticipantIDs)
	t.state.deployments.update(d.ID, cur)
	return nil
}

func (t *memTx) GetDeployment(_ context.Context, id string) (domain.Deployment, error) {
	d, ok := t.state.deployments.rows[id]
	if !ok {
		return domain.Deployment{}, domain.NotFound("deployment", id)
	}
	return cloneDeployment(d), nil
}

func (t *memTx) ListDeployments(_ context.Context, f DeploymentFilter) ([]domain.Deployment, error) {
	out := t.state.deployments.list(func(d domain.Deployment) bool {
		if f.FrameworkID != "" && d.FrameworkID != f.FrameworkID {
			return false
		}
		if f.ParticipantID != "" && !d.HasParticipant(f.ParticipantID) {
			return false
		}
		return true
	})
	for i := range out {
		out[i] = cloneDeployment(out[i])
	}
	return byCreated(out, func(d domain.Deployment) string { return d.CreatedAt }), nil
}

func (t *memTx) DeleteDeployment(_ context.Context, id string) error {
	if !t.state.deployments.remove(id) {
		return domain.NotFound("deployment", id)
	}
	for _, it := range t.state.items.list(func(it domain.InventoryItem) bool { return it.DeploymentID == id }) {
		t.dropItem(it.ID)
	}
	for _, tm := range t.state.teams.list(func(tm domain.Team) bool { return tm.DeploymentID == id }) {
		t.state.teams.remove(tm.ID)
	}
	for _, tk := range t.state.tasks.list(func(tk domain.Task) bool { return tk.DeploymentID == id }) {
		t.dropTask(tk.ID)
	}
	for aid, a := range t.state.assigned.rows {
		if ptrEq(a.DeploymentID, id) {
			a.DeploymentID = nil
			t.state.assigned.rows[aid] = a
		}
	}
	return nil
}

func (t *memTx) AddParticipant(_ context.Context, deploymentID, personID string) error {
	d, ok := t.state.deployments.rows[deploymentID]
	if !ok {
		return domain.NotFound("deployment", deploymentID)
	}
	if _, ok := t.state.people.rows[personID]; !ok {
		return domain.NotFound("person", personID)
	}
	if d.HasParticipant(personID) {
		return nil
	}
	d.ParticipantIDs = append(cloneStrings(d.ParticipantIDs), personID)
	t.state.deployments.rows[deploymentID] = d
	return nil
}

func (t *memTx) RemoveParticipant(_ context.Context, deploymentID, personID string) error {
	d, ok := t.state.deployments.rows[deploymentID]
	if !ok {
		return nil
	}
	d.ParticipantIDs = without(d.ParticipantIDs, personID)
	t.state.deployments.rows[deploymentID] = d
	return nil
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// --- people ---

func (t *memTx) InsertPerson(_ context.Context, p domain.Person) error {
	for _, other := range t.state.people.rows {
		if other.PersonalNumber == p.PersonalNumber {
			return domain.Conflict("personal number %s already exists", p.PersonalNumber)
		}
	}
	if _, ok := t.state.frameworks.rows[p.FrameworkID]; !ok {
		return domain.NotFound("framework", p.FrameworkID)
	}
	return t.state.people.insert(p.ID, clonePerson(p))
}

func (t *memTx) UpdatePerson(_ context.Context, p domain.Person) error {
	if !t.state.people.update(p.ID, clonePerson(p)) {
		return domain.NotFound("person", p.ID)
	}
	return nil
}

func (t *memTx) GetPerson(_ context.Context, id string) (domain.Person, error) {
	p, ok := t.state.people.rows[id]
	if !ok {
		return domain.Person{}, domain.NotFound("person", id)
	}
	return clonePerson(p), nil
}

func (t *memTx) GetPersonByPersonalNumber(_ context.Context, personalNumber string) (domain.Person, error) {
	for _, p := range t.state.people.rows {
		if p.PersonalNumber == personalNumber {
			return clonePerson(p), nil
		}
	}
	return domain.Person{}, domain.NotFound("person", personalNumber)
}

func (t *memTx) ListPeople(_ context.Context, f PersonFilter) ([]domain.Person, error) {
	out := t.state.people.list(func(p domain.Person) bool {
		if f.FrameworkID != "" && p.FrameworkID != f.FrameworkID {
			return false
		}
		return hasRole(f.Roles, p.Role)
	})
	for i := range out {
		out[i] = clonePerson(out[i])
	}
	return byCreated(out, func(p domain.Person) string { return p.CreatedAt }), nil
}

func (t *memTx) DeletePerson(_ context.Context, id string) error {
	for _, a := range t.state.assigned.rows {
		if a.PersonID == id {
			return domain.EquipmentConflict(id, 1)
		}
	}
	if !t.state.people.remove(id) {
		return domain.NotFound("person", id)
	}
	for did, d := range t.state.deployments.rows {
		if d.HasParticipant(id) {
			d.ParticipantIDs = without(d.ParticipantIDs, id)
			t.state.deployments.rows[did] = d
		}
	}
	for _, n := range t.state.notifications.list(func(n domain.Notification) bool { return n.RecipientID == id }) {
		t.state.notifications.remove(n.ID)
	}
	return nil
}

// --- inventory ---

func (t *memTx) InsertItem(_ context.Context, it domain.InventoryItem) error {
	if it.Quantity < 0 {
		return domain.InvalidArgument("quantity must be >= 0")
	}
	if _, ok := t.state.deployments.rows[it.DeploymentID]; !ok {
		return domain.NotFound("deployment", it.DeploymentID)
	}
	key := domain.ItemKey(it.Name)
	for _, other := range t.state.items.rows {
		if other.DeploymentID == it.DeploymentID && other.TracksSerial == it.TracksSerial && domain.ItemKey(other.Name) == key {
			return domain.Conflict("item %s already exists in deployment", it.Name)
		}
	}
	return t.state.items.insert(it.ID, cloneItem(it))
}

func (t *memTx) UpdateItem(_ context.Context, it domain.InventoryItem) error {
	cur, ok := t.state.items.rows[it.ID]
	if !ok {
		return domain.NotFound("item", it.ID)
	}
	if it.Quantity < 0 {
		return domain.InvalidArgument("quantity must be >= 0")
	}
	cur.Name = it.Name
	cur.Quantity = it.Quantity
	cur.Serials = cloneStrings(it.Serials)
	t.state.items.rows[it.ID] = cur
	return nil
}

func (t *memTx) GetItem(_ context.Context, id string) (domain.InventoryItem, error) {
	it, ok := t.state.items.rows[id]
	if !ok {
		return domain.InventoryItem{}, domain.NotFound("item", id)
	}
	return cloneItem(it), nil
}

func (t *memTx) FindItem(_ context.Context, deploymentID, name string, tracksSerial bool) (domain.InventoryItem, error) {
	key := domain.ItemKey(name)
	for _, it := range t.state.items.rows {
		if it.DeploymentID == deploymentID && it.TracksSerial == tracksSerial && domain.ItemKey(it.Name) == key {
			return cloneItem(it), nil
		}
	}
	return domain.InventoryItem{}, domain.NotFound("item", name)
}

func (t *memTx) ListItems(_ context.Context, deploymentID string) ([]domain.InventoryItem, error) {
	out := t.state.items.list(func(it domain.InventoryItem) bool {
		return deploymentID == "" || it.DeploymentID == deploymentID
	})
	for i := range out {
		out[i] = cloneItem(out[i])
	}
	return byCreated(out, func(it domain.InventoryItem) string { return it.CreatedAt }), nil
}

func (t *memTx) DeleteItem(_ context.Context, id string) error {
	if _, ok := t.state.items.rows[id]; !ok {
		return domain.NotFound("item", id)
	}
	t.dropItem(id)
	return nil
}

func (t *memTx) dropItem(id string) {
	t.state.items.remove(id)
	for aid, a := range t.state.assigned.rows {
		if ptrEq(a.InventoryItemID, id) {
			a.InventoryItemID = nil
			t.state.assigned.rows[aid] = a
		}
	}
}

// --- assigned items ---

func (t *memTx) InsertAssigned(_ context.Context, a domain.AssignedItem) error {
	if a.Quantity <= 0 {
		return domain.InvalidArgument("quantity must be > 0")
	}
	if _, ok := t.state.people.rows[a.PersonID]; !ok {
		return domain.NotFound("person", a.PersonID)
	}
	return t.state.assigned.insert(a.ID, cloneAssigned(a))
}

func (t *memTx) UpdateAssigned(_ context.Context, a domain.AssignedItem) error {
	cur, ok := t.state.assigned.rows[a.ID]
	if !ok {
		return domain.NotFound("assigned item", a.ID)
	}
	if a.Quantity <= 0 {
		return domain.InvalidArgument("quantity must be > 0")
	}
	cur.Quantity = a.Quantity
	cur.InventoryItemID = clonePtr(a.InventoryItemID)
	cur.DeploymentID = clonePtr(a.DeploymentID)
	t.state.assigned.rows[a.ID] = cur
	return nil
}

func (t *memTx) GetAssigned(_ context.Context, id string) (domain.AssignedItem, error) {
	a, ok := t.state.assigned.rows[id]
	if !ok {
		return domain.AssignedItem{}, domain.NotFound("assigned item", id)
	}
	return cloneAssigned(a), nil
}

func (t *memTx) ListAssigned(_ context.Context, f AssignedFilter) ([]domain.AssignedItem, error) {
	out := t.state.assigned.list(func(a domain.AssignedItem) bool {
		if f.PersonID != "" && a.PersonID != f.PersonID {
			return false
		}
		if f.InventoryItemID != "" && !ptrEq(a.InventoryItemID, f.InventoryItemID) {
			return false
		}
		if f.DeploymentID != "" && !ptrEq(a.DeploymentID, f.DeploymentID) {
			return false
		}
		if f.NoSerial && a.HasSerial() {
			return false
		}
		return true
	})
	for i := range out {
		out[i] = cloneAssigned(out[i])
	}
	return byCreated(out, func(a domain.AssignedItem) string { return a.AssignedAt }), nil
}

func (t *memTx) DeleteAssigned(_ context.Context, id string) error {
	if !t.state.assigned.remove(id) {
		return domain.NotFound("assigned item", id)
	}
	return nil
}

// --- teams ---

func (t *memTx) InsertTeam(_ context.Context, tm domain.Team) error {
	if _, ok := t.state.deployments.rows[tm.DeploymentID]; !ok {
		return domain.NotFound("deployment", tm.DeploymentID)
	}
	return t.state.teams.insert(tm.ID, cloneTeam(tm))
}

func (t *memTx) UpdateTeam(_ context.Context, tm domain.Team) error {
	cur, ok := t.state.teams.rows[tm.ID]
	if !ok {
		return domain.NotFound("team", tm.ID)
	}
	cur.Name = tm.Name
	cur.MemberIDs = cloneStrings(tm.MemberIDs)
	cur.LeaderID = tm.LeaderID
	t.state.teams.rows[tm.ID] = cur
	return nil
}

func (t *memTx) GetTeam(_ context.Context, id string) (domain.Team, error) {
	tm, ok := t.state.teams.rows[id]
	if !ok {
		return domain.Team{}, domain.NotFound("team", id)
	}
	return cloneTeam(tm), nil
}

func (t *memTx) ListTeams(_ context.Context, deploymentID string) ([]domain.Team, error) {
	out := t.state.teams.list(func(tm domain.Team) bool {
		return deploymentID == "" || tm.DeploymentID == deploymentID
	})
	for i := range out {
		out[i] = cloneTeam(out[i])
	}
	return out, nil
}

func (t *memTx) DeleteTeam(_ context.Context, id string) error {
	if !t.state.teams.remove(id) {
		return domain.NotFound("team", id)
	}
	return nil
}

// --- tasks ---

func (t *memTx) InsertTask(_ context.Context, tk domain.Task) error {
	if _, ok := t.state.deployments.rows[tk.DeploymentID]; !ok {
		return domain.NotFound("deployment", tk.DeploymentID)
	}
	return t.state.tasks.insert(tk.ID, cloneTask(tk))
}

func (t *memTx) UpdateTask(_ context.Context, tk domain.Task) error {
	cur, ok := t.state.tasks.rows[tk.ID]
	if !ok {
		return domain.NotFound("task", tk.ID)
	}
	tk.DeploymentID = cur.DeploymentID
	tk.CreatorID = cur.CreatorID
	tk.CreatedAt = cur.CreatedAt
	t.state.tasks.rows[tk.ID] = cloneTask(tk)
	return nil
}

func (t *memTx) GetTask(_ context.Context, id string) (domain.Task, error) {
	tk, ok := t.state.tasks.rows[id]
	if !ok {
		return domain.Task{}, domain.NotFound("task", id)
	}
	return cloneTask(tk), nil
}

func (t *memTx) ListTasks(_ context.Context, deploymentID string) ([]domain.Task, error) {
	out := t.state.tasks.list(func(tk domain.Task) bool {
		return deploymentID == "" || tk.DeploymentID == deploymentID
	})
	for i := range out {
		out[i] = cloneTask(out[i])
	}
	return byCreated(out, func(tk domain.Task) string { return tk.Start }), nil
}

func (t *memTx) DeleteTask(_ context.Context, id string) error {
	if _, ok := t.state.tasks.rows[id]; !ok {
		return domain.NotFound("task", id)
	}
	t.dropTask(id)
	return nil
}

func (t *memTx) dropTask(id string) {
	t.state.tasks.remove(id)
	for nid, n := range t.state.notifications.rows {
		if ptrEq(n.TaskID, id) {
			n.TaskID = nil
			t.state.notifications.rows[nid] = n
		}
	}
}

// --- notifications ---

func (t *memTx) InsertNotification(_ context.Context, n domain.Notification) error {
	if _, ok := t.state.people.rows[n.RecipientID]; !ok {
		return domain.NotFound("person", n.RecipientID)
	}
	return t.state.notifications.insert(n.ID, cloneNotification(n))
}

func (t *memTx) GetNotification(_ context.Context, id string) (domain.Notification, error) {
	n, ok := t.state.notifications.rows[id]
	if !ok {
		return domain.Notification{}, domain.NotFound("notification", id)
	}
	return cloneNotification(n), nil
}

func (t *memTx) MarkNotificationRead(_ context.Context, id string) error {
	n, ok := t.state.notifications.rows[id]
	if !ok {
		return domain.NotFound("notification", id)
	}
	n.Read = true
	t.state.notifications.rows[id] = n
	return nil
}

func (t *memTx) ListNotifications(_ context.Context, recipientID string) ([]domain.Notification, error) {
	all := t.state.notifications.list(func(n domain.Notification) bool {
		return recipientID == "" || n.RecipientID == recipientID
	})
	out := make([]domain.Notification, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, cloneNotification(all[i]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// --- events ---

func (t *memTx) AppendEvent(_ context.Context, evt domain.Event) error {
	evt = cloneEvent(evt)
	evt.ID = t.state.nextEventID
	t.state.nextEventID++
	t.state.events = append(t.state.events, evt)
	return nil
}

func (t *memTx) ListEvents(_ context.Context, f EventFilter) ([]domain.Event, error) {
	limit := normalizeLimit(f.Limit)
	var out []domain.Event
	for i := len(t.state.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := t.state.events[i]
		if f.DeploymentID != "" && !ptrEq(e.DeploymentID, f.DeploymentID) {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.EntityKind != "" && e.EntityKind != f.EntityKind {
			continue
		}
		if f.EntityID != "" && !ptrEq(e.EntityID, f.EntityID) {
			continue
		}
		if f.BeforeID > 0 && e.ID >= f.BeforeID {
			continue
		}
		out = append(out, cloneEvent(e))
	}
	return out, nil
}

func (t *memTx) Reset(_ context.Context) error {
	fresh := newMemoryState()
	fresh.events = t.state.events
	fresh.nextEventID = t.state.nextEventID
	t.state = fresh
	return nil
}
