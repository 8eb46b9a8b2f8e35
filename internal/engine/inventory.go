package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine/auth"
	"github.com/ShovalB85/RasApp/internal/events"
	"github.com/ShovalB85/RasApp/internal/repo"
)

// StockLine is one incoming batch for AddStock.
type StockLine struct {
	Name             string   `json:"name"`
	TracksSerial     bool     `json:"tracks_serial"`
	Serials          []string `json:"serials,omitempty"`
	NoSerialQuantity int      `json:"no_serial_quantity,omitempty" minimum:"0" maximum:"2147483647"`
}

// ItemResult reports the state of an item after a stock change. Deleted is
// set when the change removed the item or it was never created.
type ItemResult struct {
	Item    domain.InventoryItem `json:"item"`
	Created bool                 `json:"created,omitempty"`
	Deleted bool                 `json:"deleted,omitempty"`
}

// ItemView is an inventory row with its derived numbers.
type ItemView struct {
	domain.InventoryItem
	Assigned  int `json:"assigned"`
	Available int `json:"available"`
}

// availability: quantity minus plain assignments for quantity items, the
// full stored total for serialized items.
func availability(ctx context.Context, tx repo.Tx, item domain.InventoryItem) (int, error) {
	if item.TracksSerial {
		return item.Total(), nil
	}
	held, err := tx.ListAssigned(ctx, repo.AssignedFilter{InventoryItemID: item.ID, NoSerial: true})
	if err != nil {
		return 0, err
	}
	return item.Quantity - repo.SumQuantity(held), nil
}

func assignedFloor(ctx context.Context, tx repo.Tx, itemID string) (int, error) {
	held, err := tx.ListAssigned(ctx, repo.AssignedFilter{InventoryItemID: itemID, NoSerial: true})
	if err != nil {
		return 0, err
	}
	return repo.SumQuantity(held), nil
}

// liveSerials returns the serials of item currently held by someone.
func liveSerials(ctx context.Context, tx repo.Tx, itemID string) (map[string]bool, error) {
	held, err := tx.ListAssigned(ctx, repo.AssignedFilter{InventoryItemID: itemID})
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, a := range held {
		if a.HasSerial() {
			out[*a.Serial] = true
		}
	}
	return out, nil
}

func cleanSerials(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (e Engine) manageableItem(ctx context.Context, tx repo.Tx, actor domain.Person, itemID string) (domain.InventoryItem, domain.Deployment, error) {
	item, err := tx.GetItem(ctx, itemID)
	if err != nil {
		return domain.InventoryItem{}, domain.Deployment{}, err
	}
	dep, err := tx.GetDeployment(ctx, item.DeploymentID)
	if err != nil {
		return domain.InventoryItem{}, domain.Deployment{}, err
	}
	if !auth.CanManageInventory(actor, dep) {
		return domain.InventoryItem{}, domain.Deployment{}, domain.PermissionDenied("inventory.manage")
	}
	return item, dep, nil
}

// AddStock merges each line into the deployment's inventory by
// case-insensitive name and serial tracking.
func (e Engine) AddStock(ctx context.Context, actorID, deploymentID string, lines ...StockLine) ([]ItemResult, error) {
	var results []ItemResult
	err := e.mutate(ctx, "inventory.add", actorID, logrus.Fields{"deployment": deploymentID}, func(tx repo.Tx, actor domain.Person) error {
		dep, err := tx.GetDeployment(ctx, deploymentID)
		if err != nil {
			return err
		}
		if !auth.CanManageInventory(actor, dep) {
			return domain.PermissionDenied("inventory.manage")
		}
		if len(lines) == 0 {
			return domain.InvalidArgument("at least one stock line required")
		}
		results = make([]ItemResult, 0, len(lines))
		for _, line := range lines {
			res, err := e.addOrMergeItem(ctx, tx, actor, dep, line)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	return results, err
}

func checkQuantity(field string, q int) error {
	if q < 0 || q > domain.MaxQuantity {
		return domain.InvalidArgument("%s must be between 0 and %d", field, domain.MaxQuantity)
	}
	return nil
}

func (e Engine) addOrMergeItem(ctx context.Context, tx repo.Tx, actor domain.Person, dep domain.Deployment, line StockLine) (ItemResult, error) {
	name := strings.TrimSpace(line.Name)
	if name == "" {
		return ItemResult{}, domain.InvalidArgument("item name required")
	}
	if err := checkQuantity("no-serial quantity", line.NoSerialQuantity); err != nil {
		return ItemResult{}, err
	}
	serials := cleanSerials(line.Serials)
	if !line.TracksSerial && len(serials) > 0 {
		return ItemResult{}, domain.InvalidArgument("serials given for %q which does not track serials", name)
	}

	item, err := tx.FindItem(ctx, dep.ID, name, line.TracksSerial)
	created := false
	switch {
	case errors.Is(err, repo.ErrNotFound):
		created = true
		item = domain.InventoryItem{
			ID:           newID(),
			DeploymentID: dep.ID,
			Name:         name,
			TracksSerial: line.TracksSerial,
			Serials:      []string{},
			CreatedAt:    e.stamp(),
		}
	case err != nil:
		return ItemResult{}, err
	}

	live := map[string]bool{}
	if !created {
		if live, err = liveSerials(ctx, tx, item.ID); err != nil {
			return ItemResult{}, err
		}
	}
	batch := map[string]bool{}
	for _, s := range serials {
		if batch[s] || item.HasSerial(s) || live[s] {
			return ItemResult{}, domain.DuplicateSerial(item.ID, s)
		}
		batch[s] = true
	}

	before := item.Total()
	if line.NoSerialQuantity+len(serials) > domain.MaxQuantity-before {
		return ItemResult{}, domain.InvalidArgument("stock of %q would exceed %d", item.Name, domain.MaxQuantity)
	}
	item.Serials = append(item.Serials, serials...)
	item.Quantity += line.NoSerialQuantity

	if item.Total() <= 0 {
		if created {
			return ItemResult{Item: item, Deleted: true}, nil
		}
		if !auth.CanDecreaseOrDelete(actor) {
			return ItemResult{}, domain.DeleteRequiresAdmin(item.ID)
		}
		if err := tx.DeleteItem(ctx, item.ID); err != nil {
			return ItemResult{}, err
		}
		return ItemResult{Item: item, Deleted: true}, e.emit(ctx, tx, events.ItemDeleted, dep.ID, "item", item.ID, actor.ID, events.Payload{"name": item.Name})
	}

	if created {
		err = tx.InsertItem(ctx, item)
	} else {
		err = tx.UpdateItem(ctx, item)
	}
	if err != nil {
		return ItemResult{}, err
	}
	return ItemResult{Item: item, Created: created}, e.emit(ctx, tx, events.StockAdded, dep.ID, "item", item.ID, actor.ID, events.Payload{
		"name":           item.Name,
		"serials_added":  serials,
		"quantity_added": line.NoSerialQuantity,
		"before_total":   before,
		"after_total":    item.Total(),
	})
}

// SetQuantity sets the stored quantity of a non-serialized item. Zero deletes.
func (e Engine) SetQuantity(ctx context.Context, actorID, itemID string, q int) (ItemResult, error) {
	var res ItemResult
	err := e.mutate(ctx, "inventory.set_quantity", actorID, logrus.Fields{"item": itemID}, func(tx repo.Tx, actor domain.Person) error {
		item, dep, err := e.manageableItem(ctx, tx, actor, itemID)
		if err != nil {
			return err
		}
		if item.TracksSerial {
			return domain.InvalidArgument("item %s tracks serials; set its serial state instead", item.ID)
		}
		if q > domain.MaxQuantity {
			return domain.InvalidArgument("quantity must be <= %d", domain.MaxQuantity)
		}
		floor, err := assignedFloor(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if q < floor {
			return domain.BelowAssignedFloor(item.ID, q, floor)
		}
		if q < item.Quantity && !auth.CanDecreaseOrDelete(actor) {
			return domain.PrivilegeTooLow("decrease stock")
		}
		before := item.Quantity
		if q <= 0 {
			if !auth.CanDecreaseOrDelete(actor) {
				return domain.DeleteRequiresAdmin(item.ID)
			}
			if err := tx.DeleteItem(ctx, item.ID); err != nil {
				return err
			}
			item.Quantity = 0
			res = ItemResult{Item: item, Deleted: true}
			return e.emit(ctx, tx, events.ItemDeleted, dep.ID, "item", item.ID, actor.ID, events.Payload{"name": item.Name, "before_quantity": before})
		}
		item.Quantity = q
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		res = ItemResult{Item: item}
		return e.emit(ctx, tx, events.QuantitySet, dep.ID, "item", item.ID, actor.ID, events.Payload{"before_quantity": before, "after_quantity": q})
	})
	return res, err
}

// SetSerialState replaces the serial list and no-serial quantity of a
// serialized item. Managers may only add serials.
func (e Engine) SetSerialState(ctx context.Context, actorID, itemID string, q int, serials []string) (ItemResult, error) {
	var res ItemResult
	err := e.mutate(ctx, "inventory.set_serials", actorID, logrus.Fields{"item": itemID}, func(tx repo.Tx, actor domain.Person) error {
		item, dep, err := e.manageableItem(ctx, tx, actor, itemID)
		if err != nil {
			return err
		}
		if !item.TracksSerial {
			return domain.InvalidArgument("item %s does not track serials", item.ID)
		}
		if err := checkQuantity("no-serial quantity", q); err != nil {
			return err
		}
		next := cleanSerials(serials)
		if len(next) > domain.MaxQuantity-q {
			return domain.InvalidArgument("stock of %q would exceed %d", item.Name, domain.MaxQuantity)
		}
		live, err := liveSerials(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, s := range next {
			if seen[s] || live[s] {
				return domain.DuplicateSerial(item.ID, s)
			}
			seen[s] = true
		}
		if !auth.CanDecreaseOrDelete(actor) {
			if q != item.Quantity {
				return domain.PrivilegeTooLow("change the no-serial quantity")
			}
			for _, s := range item.Serials {
				if !seen[s] {
					return domain.PrivilegeTooLow("remove serials")
				}
			}
		}
		floor, err := assignedFloor(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if q < floor {
			return domain.BelowAssignedFloor(item.ID, q, floor)
		}

		payload := events.Payload{
			"before_serials":  item.Serials,
			"after_serials":   next,
			"before_quantity": item.Quantity,
			"after_quantity":  q,
		}
		item.Serials = next
		item.Quantity = q
		if item.Total() == 0 {
			if !auth.CanDecreaseOrDelete(actor) {
				return domain.DeleteRequiresAdmin(item.ID)
			}
			if err := tx.DeleteItem(ctx, item.ID); err != nil {
				return err
			}
			res = ItemResult{Item: item, Deleted: true}
			return e.emit(ctx, tx, events.ItemDeleted, dep.ID, "item", item.ID, actor.ID, payload)
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		res = ItemResult{Item: item}
		return e.emit(ctx, tx, events.SerialsSet, dep.ID, "item", item.ID, actor.ID, payload)
	})
	return res, err
}

// RemoveSerial drops one unassigned serial. Admin only.
func (e Engine) RemoveSerial(ctx context.Context, actorID, itemID, serial string) (ItemResult, error) {
	var res ItemResult
	err := e.mutate(ctx, "inventory.remove_serial", actorID, logrus.Fields{"item": itemID}, func(tx repo.Tx, actor domain.Person) error {
		item, dep, err := e.manageableItem(ctx, tx, actor, itemID)
		if err != nil {
			return err
		}
		if !auth.CanDecreaseOrDelete(actor) {
			return domain.PrivilegeTooLow("remove serials")
		}
		if !item.HasSerial(serial) {
			return domain.SerialUnavailable(item.ID, serial)
		}
		remaining := make([]string, 0, len(item.Serials)-1)
		for _, s := range item.Serials {
			if s != serial {
				remaining = append(remaining, s)
			}
		}
		item.Serials = remaining
		if item.Total() == 0 {
			if err := tx.DeleteItem(ctx, item.ID); err != nil {
				return err
			}
			res = ItemResult{Item: item, Deleted: true}
		} else {
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
			res = ItemResult{Item: item}
		}
		return e.emit(ctx, tx, events.SerialRemoved, dep.ID, "item", item.ID, actor.ID, events.Payload{"serial": serial, "deleted": res.Deleted})
	})
	return res, err
}

// DeleteItem removes an empty item. Assignments that came from it keep
// their record and lose the link.
func (e Engine) DeleteItem(ctx context.Context, actorID, itemID string) error {
	return e.mutate(ctx, "inventory.delete", actorID, logrus.Fields{"item": itemID}, func(tx repo.Tx, actor domain.Person) error {
		item, dep, err := e.manageableItem(ctx, tx, actor, itemID)
		if err != nil {
			return err
		}
		if !auth.CanDecreaseOrDelete(actor) {
			return domain.DeleteRequiresAdmin(item.ID)
		}
		if total := item.Total(); total != 0 {
			return domain.InvalidArgument("item %s still holds %d units", item.ID, total).With("total", total)
		}
		if err := tx.DeleteItem(ctx, item.ID); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.ItemDeleted, dep.ID, "item", item.ID, actor.ID, events.Payload{"name": item.Name})
	})
}

// Availability is how many more units of the item can be handed out.
func (e Engine) Availability(ctx context.Context, itemID string) (int, error) {
	var n int
	err := e.Store.View(ctx, func(tx repo.Tx) error {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		n, err = availability(ctx, tx, item)
		return err
	})
	return n, err
}

func itemViews(ctx context.Context, tx repo.Tx, deploymentID string) ([]ItemView, error) {
	items, err := tx.ListItems(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		held, err := tx.ListAssigned(ctx, repo.AssignedFilter{InventoryItemID: it.ID})
		if err != nil {
			return nil, err
		}
		avail, err := availability(ctx, tx, it)
		if err != nil {
			return nil, err
		}
		out = append(out, ItemView{InventoryItem: it, Assigned: repo.SumQuantity(held), Available: avail})
	}
	return out, nil
}

// ListInventory returns the deployment's items with assigned and available
// counts.
func (e Engine) ListInventory(ctx context.Context, actorID, deploymentID string) ([]ItemView, error) {
	var out []ItemView
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		dep, err := tx.GetDeployment(ctx, deploymentID)
		if err != nil {
			return err
		}
		if !auth.CanViewDeployment(actor, dep) {
			return domain.PermissionDenied("deployment.view")
		}
		out, err = itemViews(ctx, tx, dep.ID)
		return err
	})
	return out, err
}
