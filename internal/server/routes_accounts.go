package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
)

func loginResponse(authCfg AuthConfig, res engine.LoginResult) (LoginResponse, error) {
	out := LoginResponse{
		Person:             res.Person,
		NeedsPassword:      res.NeedsPassword,
		NeedsPasswordEntry: res.NeedsPasswordEntry,
	}
	if res.Person == nil {
		return out, nil
	}
	token, exp, err := issueToken(authCfg, *res.Person)
	if err != nil {
		return LoginResponse{}, err
	}
	out.Token = token
	out.ExpiresAt = &exp
	return out, nil
}

func registerAccounts(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in with personal number and password",
		Description: "Returns a bearer token, or tells the client a password must be set or entered first.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*out[LoginResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		res, err := e.Login(ctx, input.Body.PersonalNumber, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := loginResponse(authCfg, res)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-initial-password",
		Method:      http.MethodPost,
		Path:        "/auth/set-password",
		Summary:     "Set the first password and log in",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body SetPasswordRequest `json:"body"`
	}) (*out[LoginResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		p, err := e.SetInitialPassword(ctx, input.Body.PersonalNumber, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := loginResponse(authCfg, engine.LoginResult{Person: &p, PersonID: p.ID})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "change-password",
		Method:        http.MethodPost,
		Path:          "/auth/change-password",
		Summary:       "Change own password",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body ChangePasswordRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ChangePassword(ctx, actorID, input.Body.CurrentPassword, input.Body.NewPassword); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current person with assigned items",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*out[domain.Person], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Me(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-frameworks",
		Method:      http.MethodGet,
		Path:        "/frameworks",
		Summary:     "List frameworks with their people",
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Framework], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListFrameworks(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-framework",
		Method:        http.MethodPost,
		Path:          "/frameworks",
		Summary:       "Create framework",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body NameRequest `json:"body"`
	}) (*out[domain.Framework], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.CreateFramework(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(f), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-person",
		Method:        http.MethodPost,
		Path:          "/frameworks/{id}/people",
		Summary:       "Add or update a person by personal number",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body engine.PersonInput `json:"body"`
	}) (*out[domain.Person], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddPerson(ctx, actorID, input.ID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})
}

func registerPeople(api huma.API, e engine.Engine) {
	type personPath struct {
		ID string `path:"id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-person",
		Method:      http.MethodGet,
		Path:        "/people/{id}",
		Summary:     "Get person with assigned items",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *personPath) (*out[domain.Person], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetPerson(ctx, actorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-person",
		Method:      http.MethodPut,
		Path:        "/people/{id}",
		Summary:     "Rename person",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body NameRequest `json:"body"`
	}) (*out[domain.Person], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RenamePerson(ctx, actorID, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-role",
		Method:      http.MethodPut,
		Path:        "/people/{id}/role",
		Summary:     "Change role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body RoleRequest `json:"body"`
	}) (*out[domain.Person], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ChangeRole(ctx, actorID, input.ID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-person",
		Method:        http.MethodDelete,
		Path:          "/people/{id}",
		Summary:       "Remove person from the framework",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *personPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveFromFramework(ctx, actorID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "person-tasks",
		Method:      http.MethodGet,
		Path:        "/people/{id}/tasks",
		Summary:     "Tasks assigned to a person directly or through a team",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *personPath) (*out[[]domain.Task], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.ListTasksForPerson(ctx, actorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(tasks)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-item",
		Method:        http.MethodPost,
		Path:          "/people/{id}/assigned-items",
		Summary:       "Assign inventory or record an external item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*out[domain.AssignedItem], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var (
			a   domain.AssignedItem
			err error
		)
		if input.Body.InventoryItemID != "" {
			a, err = e.AssignWithProvider(ctx, actorID, input.ID, input.Body.InventoryItemID, input.Body.Quantity, input.Body.Serial, input.Body.Provider)
		} else {
			a, err = e.AssignExternal(ctx, actorID, input.ID, engine.ExternalItem{
				Name:         input.Body.Name,
				Quantity:     input.Body.Quantity,
				Provider:     input.Body.Provider,
				DeploymentID: input.Body.DeploymentID,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-assigned-item",
		Method:      http.MethodPut,
		Path:        "/people/{id}/assigned-items/{assignedId}",
		Summary:     "Change held quantity; zero returns the item",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID         string          `path:"id"`
		AssignedID string          `path:"assignedId"`
		Body       QuantityRequest `json:"body"`
	}) (*out[UpdateAssignedResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateAssigned(ctx, actorID, input.ID, input.AssignedID, input.Body.Quantity)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(UpdateAssignedResponse{Item: a, Returned: a == nil}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "unassign-item",
		Method:        http.MethodDelete,
		Path:          "/people/{id}/assigned-items/{assignedId}",
		Summary:       "Return an assigned item",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID         string `path:"id"`
		AssignedID string `path:"assignedId"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Unassign(ctx, actorID, input.ID, input.AssignedID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
