package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
	"github.com/ShovalB85/RasApp/internal/repo"
)

type itemPath struct {
	ID     string `path:"id"`
	ItemID string `path:"itemId"`
}

// itemInDeployment rejects item ids that belong to another deployment than
// the one in the URL.
func itemInDeployment(ctx context.Context, e engine.Engine, deploymentID, itemID string) error {
	return e.Store.View(ctx, func(tx repo.Tx) error {
		it, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if it.DeploymentID != deploymentID {
			return domain.NotFound("item", itemID)
		}
		return nil
	})
}

func registerInventory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-inventory",
		Method:      http.MethodGet,
		Path:        "/deployments/{id}/inventory",
		Summary:     "Inventory with assigned and available counts",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *deploymentPath) (*out[[]engine.ItemView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListInventory(ctx, actorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-stock",
		Method:      http.MethodPost,
		Path:        "/deployments/{id}/inventory",
		Summary:     "Add stock, merging by name and serial tracking",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body AddStockRequest `json:"body"`
	}) (*out[[]engine.ItemResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.AddStock(ctx, actorID, input.ID, input.Body.Lines...)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-quantity",
		Method:      http.MethodPut,
		Path:        "/deployments/{id}/inventory/{itemId}/quantity",
		Summary:     "Set stored quantity of a non-serialized item",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		itemPath
		Body QuantityRequest `json:"body"`
	}) (*out[engine.ItemResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := itemInDeployment(ctx, e, input.ID, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		res, err := e.SetQuantity(ctx, actorID, input.ItemID, input.Body.Quantity)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-serials",
		Method:      http.MethodPut,
		Path:        "/deployments/{id}/inventory/{itemId}/serials",
		Summary:     "Replace serials and no-serial quantity",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		itemPath
		Body SerialStateRequest `json:"body"`
	}) (*out[engine.ItemResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := itemInDeployment(ctx, e, input.ID, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		res, err := e.SetSerialState(ctx, actorID, input.ItemID, input.Body.NoSerialQuantity, input.Body.Serials)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-serial",
		Method:      http.MethodDelete,
		Path:        "/deployments/{id}/inventory/{itemId}/serials/{serial}",
		Summary:     "Remove one unassigned serial",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		itemPath
		Serial string `path:"serial"`
	}) (*out[engine.ItemResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := itemInDeployment(ctx, e, input.ID, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		res, err := e.RemoveSerial(ctx, actorID, input.ItemID, input.Serial)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-item",
		Method:        http.MethodDelete,
		Path:          "/deployments/{id}/inventory/{itemId}",
		Summary:       "Delete an empty item",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *itemPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := itemInDeployment(ctx, e, input.ID, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteItem(ctx, actorID, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-assign",
		Method:      http.MethodPost,
		Path:        "/deployments/{id}/bulk-assign",
		Summary:     "Give every listed person the same quantity of each item",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body BulkAssignRequest `json:"body"`
	}) (*out[[]domain.AssignedItem], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.BulkAssign(ctx, actorID, input.ID, input.Body.Quantities, input.Body.PersonIDs)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(res)), nil
	})
}
