package engine

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine/auth"
	"github.com/ShovalB85/RasApp/internal/events"
	"github.com/ShovalB85/RasApp/internal/repo"
)

// ExternalItem is equipment handed out that never passed through inventory.
type ExternalItem struct {
	Name         string `json:"name"`
	Quantity     int    `json:"quantity" minimum:"1" maximum:"2147483647"`
	Provider     string `json:"provider,omitempty"`
	DeploymentID string `json:"deployment_id,omitempty"`
}

const defaultExternalProvider = "External"

// Assign hands inventory to a person. Serialized items move the serial from
// the item to the assignment; quantity items only check availability.
func (e Engine) Assign(ctx context.Context, actorID, personID, itemID string, quantity int, serial string) (domain.AssignedItem, error) {
	return e.AssignWithProvider(ctx, actorID, personID, itemID, quantity, serial, "")
}

// AssignWithProvider is Assign with an explicit provider label. An empty
// provider records the deployment name.
func (e Engine) AssignWithProvider(ctx context.Context, actorID, personID, itemID string, quantity int, serial, provider string) (domain.AssignedItem, error) {
	var out domain.AssignedItem
	err := e.mutate(ctx, "custody.assign", actorID, logrus.Fields{"item": itemID, "person": personID}, func(tx repo.Tx, actor domain.Person) error {
		item, dep, err := e.manageableItem(ctx, tx, actor, itemID)
		if err != nil {
			return err
		}
		if _, err := tx.GetPerson(ctx, personID); err != nil {
			return err
		}
		availBefore, err := availability(ctx, tx, item)
		if err != nil {
			return err
		}
		provider = strings.TrimSpace(provider)
		if provider == "" {
			provider = dep.Name
		}
		out = domain.AssignedItem{
			ID:              newID(),
			PersonID:        personID,
			Name:            item.Name,
			Provider:        provider,
			InventoryItemID: optionalString(item.ID),
			DeploymentID:    optionalString(item.DeploymentID),
			AssignedAt:      e.stamp(),
		}
		if item.TracksSerial {
			serial = strings.TrimSpace(serial)
			if serial == "" || !item.HasSerial(serial) {
				return domain.SerialUnavailable(item.ID, serial)
			}
			remaining := make([]string, 0, len(item.Serials)-1)
			for _, s := range item.Serials {
				if s != serial {
					remaining = append(remaining, s)
				}
			}
			item.Serials = remaining
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
			out.Quantity = 1
			out.Serial = optionalString(serial)
		} else {
			if quantity <= 0 {
				return domain.InvalidArgument("quantity must be > 0")
			}
			if quantity > availBefore {
				return domain.InsufficientStock(item.ID, quantity, availBefore)
			}
			out.Quantity = quantity
		}
		if err := tx.InsertAssigned(ctx, out); err != nil {
			return err
		}
		availAfter, err := availability(ctx, tx, item)
		if err != nil {
			return err
		}
		return e.emit(ctx, tx, events.ItemAssigned, dep.ID, "assignment", out.ID, actor.ID, events.Payload{
			"person_id":        personID,
			"item_id":          item.ID,
			"quantity":         out.Quantity,
			"serial":           deref(out.Serial),
			"available_before": availBefore,
			"available_after":  availAfter,
		})
	})
	return out, err
}

// AssignExternal records equipment that came from outside the inventory.
func (e Engine) AssignExternal(ctx context.Context, actorID, personID string, in ExternalItem) (domain.AssignedItem, error) {
	var out domain.AssignedItem
	err := e.mutate(ctx, "custody.assign_external", actorID, logrus.Fields{"person": personID}, func(tx repo.Tx, actor domain.Person) error {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return domain.InvalidArgument("item name required")
		}
		if in.Quantity <= 0 || in.Quantity > domain.MaxQuantity {
			return domain.InvalidArgument("quantity must be between 1 and %d", domain.MaxQuantity)
		}
		if _, err := tx.GetPerson(ctx, personID); err != nil {
			return err
		}
		provider := strings.TrimSpace(in.Provider)
		if provider == "" {
			provider = defaultExternalProvider
		}
		out = domain.AssignedItem{
			ID:           newID(),
			PersonID:     personID,
			Name:         name,
			Quantity:     in.Quantity,
			Provider:     provider,
			DeploymentID: optionalString(in.DeploymentID),
			AssignedAt:   e.stamp(),
		}
		var dep *domain.Deployment
		if in.DeploymentID != "" {
			d, err := tx.GetDeployment(ctx, in.DeploymentID)
			if err != nil {
				return err
			}
			dep = &d
		}
		if !auth.CanUnassignOrEditAssignedItem(actor, out, dep) {
			return domain.PermissionDenied("custody.assign")
		}
		if err := tx.InsertAssigned(ctx, out); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.ExternalAssigned, in.DeploymentID, "assignment", out.ID, actor.ID, events.Payload{
			"person_id": personID,
			"name":      name,
			"quantity":  in.Quantity,
			"provider":  provider,
		})
	})
	return out, err
}

func assignmentDeployment(ctx context.Context, tx repo.Tx, a domain.AssignedItem) (*domain.Deployment, error) {
	if a.DeploymentID == nil {
		return nil, nil
	}
	d, err := tx.GetDeployment(ctx, *a.DeploymentID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateAssigned changes the quantity a person holds. Zero returns the item;
// the result is nil in that case.
func (e Engine) UpdateAssigned(ctx context.Context, actorID, personID, assignedID string, q int) (*domain.AssignedItem, error) {
	var out *domain.AssignedItem
	err := e.mutate(ctx, "custody.update", actorID, logrus.Fields{"assignment": assignedID, "person": personID}, func(tx repo.Tx, actor domain.Person) error {
		a, err := tx.GetAssigned(ctx, assignedID)
		if err != nil {
			return err
		}
		if a.PersonID != personID {
			return domain.NotFound("assigned item", assignedID)
		}
		if err := checkQuantity("quantity", q); err != nil {
			return err
		}
		dep, err := assignmentDeployment(ctx, tx, a)
		if err != nil {
			return err
		}
		if !auth.CanUnassignOrEditAssignedItem(actor, a, dep) {
			return domain.PermissionDenied("custody.edit")
		}
		depID := deref(a.DeploymentID)

		if q == 0 {
			if err := e.returnSerial(ctx, tx, a); err != nil {
				return err
			}
			if err := tx.DeleteAssigned(ctx, a.ID); err != nil {
				return err
			}
			return e.emit(ctx, tx, events.ItemReturned, depID, "assignment", a.ID, actor.ID, events.Payload{
				"person_id": personID,
				"item_id":   deref(a.InventoryItemID),
				"quantity":  a.Quantity,
				"serial":    deref(a.Serial),
			})
		}
		if a.HasSerial() {
			if q != 1 {
				return domain.SerialQuantityFixed(a.ID, q)
			}
			out = &a
			return nil
		}
		if a.InventoryItemID != nil && q > a.Quantity {
			item, err := tx.GetItem(ctx, *a.InventoryItemID)
			if err != nil {
				return err
			}
			avail, err := availability(ctx, tx, item)
			if err != nil {
				return err
			}
			if q-a.Quantity > avail {
				return domain.InsufficientStock(item.ID, q-a.Quantity, avail)
			}
		}
		before := a.Quantity
		a.Quantity = q
		if err := tx.UpdateAssigned(ctx, a); err != nil {
			return err
		}
		out = &a
		return e.emit(ctx, tx, events.AssignmentUpdated, depID, "assignment", a.ID, actor.ID, events.Payload{
			"person_id":       personID,
			"before_quantity": before,
			"after_quantity":  q,
		})
	})
	return out, err
}

// returnSerial puts a held serial back on its item if the item still exists
// and does not already list it.
func (e Engine) returnSerial(ctx context.Context, tx repo.Tx, a domain.AssignedItem) error {
	if !a.HasSerial() || a.InventoryItemID == nil {
		return nil
	}
	item, err := tx.GetItem(ctx, *a.InventoryItemID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if item.HasSerial(*a.Serial) {
		return nil
	}
	item.Serials = append(item.Serials, *a.Serial)
	return tx.UpdateItem(ctx, item)
}

// Unassign returns an assignment in full.
func (e Engine) Unassign(ctx context.Context, actorID, personID, assignedID string) error {
	_, err := e.UpdateAssigned(ctx, actorID, personID, assignedID, 0)
	return err
}

// BulkAssign gives every person perPersonQty of each item. Nothing is written
// unless every item has enough availability for everyone.
func (e Engine) BulkAssign(ctx context.Context, actorID, deploymentID string, quantities map[string]int, personIDs []string) ([]domain.AssignedItem, error) {
	var out []domain.AssignedItem
	err := e.mutate(ctx, "custody.bulk_assign", actorID, logrus.Fields{"deployment": deploymentID}, func(tx repo.Tx, actor domain.Person) error {
		dep, err := tx.GetDeployment(ctx, deploymentID)
		if err != nil {
			return err
		}
		if !auth.CanManageInventory(actor, dep) {
			return domain.PermissionDenied("inventory.manage")
		}
		persons := dedupe(personIDs)
		if len(persons) == 0 {
			return domain.InvalidArgument("at least one person required")
		}
		if len(quantities) == 0 {
			return domain.InvalidArgument("at least one item required")
		}
		for _, pid := range persons {
			if _, err := tx.GetPerson(ctx, pid); err != nil {
				return err
			}
		}
		itemIDs := make([]string, 0, len(quantities))
		for id := range quantities {
			itemIDs = append(itemIDs, id)
		}
		sort.Strings(itemIDs)

		items := make([]domain.InventoryItem, 0, len(itemIDs))
		for _, id := range itemIDs {
			per := quantities[id]
			if per <= 0 || per > domain.MaxQuantity {
				return domain.InvalidArgument("quantity for item %s must be between 1 and %d", id, domain.MaxQuantity)
			}
			item, err := tx.GetItem(ctx, id)
			if err != nil {
				return err
			}
			if item.DeploymentID != dep.ID {
				return domain.InvalidArgument("item %s does not belong to deployment %s", id, dep.ID)
			}
			if item.TracksSerial {
				return domain.InvalidArgument("item %s tracks serials and needs a serial per person", id)
			}
			avail, err := availability(ctx, tx, item)
			if err != nil {
				return err
			}
			if per > avail/len(persons) {
				return domain.InsufficientStock(item.ID, cappedProduct(per, len(persons)), avail)
			}
			items = append(items, item)
		}

		now := e.stamp()
		for _, item := range items {
			per := quantities[item.ID]
			for _, pid := range persons {
				a := domain.AssignedItem{
					ID:              newID(),
					PersonID:        pid,
					Name:            item.Name,
					Quantity:        per,
					Provider:        dep.Name,
					InventoryItemID: optionalString(item.ID),
					DeploymentID:    optionalString(dep.ID),
					AssignedAt:      now,
				}
				if err := tx.InsertAssigned(ctx, a); err != nil {
					return err
				}
				out = append(out, a)
			}
			if err := e.emit(ctx, tx, events.BulkAssigned, dep.ID, "item", item.ID, actor.ID, events.Payload{
				"person_ids":     persons,
				"per_person":     per,
				"total_quantity": per * len(persons),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// cappedProduct multiplies two positive ints, saturating at math.MaxInt.
func cappedProduct(a, n int) int {
	if a > math.MaxInt/n {
		return math.MaxInt
	}
	return a * n
}
