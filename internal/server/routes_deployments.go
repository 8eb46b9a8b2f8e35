package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
)

type deploymentPath struct {
	ID string `path:"id"`
}

func registerDeployments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-deployments",
		Method:      http.MethodGet,
		Path:        "/deployments",
		Summary:     "List visible deployments",
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Deployment], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListDeployments(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-deployment",
		Method:        http.MethodPost,
		Path:          "/deployments",
		Summary:       "Create deployment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateDeploymentRequest `json:"body"`
	}) (*out[domain.Deployment], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDeployment(ctx, actorID, input.Body.FrameworkID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-deployment",
		Method:      http.MethodGet,
		Path:        "/deployments/{id}",
		Summary:     "Deployment with participants, inventory, teams and tasks",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *deploymentPath) (*out[engine.DeploymentView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.GetDeployment(ctx, actorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		view.Participants = nonNilSlice(view.Participants)
		view.Inventory = nonNilSlice(view.Inventory)
		view.Teams = nonNilSlice(view.Teams)
		view.Tasks = nonNilSlice(view.Tasks)
		return reply(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-deployment",
		Method:      http.MethodPut,
		Path:        "/deployments/{id}",
		Summary:     "Rename deployment",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body NameRequest `json:"body"`
	}) (*out[domain.Deployment], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.RenameDeployment(ctx, actorID, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-deployment",
		Method:        http.MethodDelete,
		Path:          "/deployments/{id}",
		Summary:       "Delete deployment",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *deploymentPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteDeployment(ctx, actorID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-participants",
		Method:      http.MethodPost,
		Path:        "/deployments/{id}/participants",
		Summary:     "Add participants",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body ParticipantsRequest `json:"body"`
	}) (*out[domain.Deployment], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.AddParticipants(ctx, actorID, input.ID, input.Body.PersonIDs)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-participant",
		Method:        http.MethodDelete,
		Path:          "/deployments/{id}/participants/{personId}",
		Summary:       "Remove participant",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID       string `path:"id"`
		PersonID string `path:"personId"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveParticipant(ctx, actorID, input.ID, input.PersonID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTeams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/deployments/{id}/teams",
		Summary:     "List teams",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *deploymentPath) (*out[[]domain.Team], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		teams, err := e.ListTeams(ctx, actorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(teams)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-team",
		Method:      http.MethodPost,
		Path:        "/deployments/{id}/teams",
		Summary:     "Create a team, or replace it when id is given",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body engine.TeamInput `json:"body"`
	}) (*out[domain.Team], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		team, err := e.SaveTeam(ctx, actorID, input.ID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(team), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-team",
		Method:        http.MethodDelete,
		Path:          "/deployments/{id}/teams/{teamId}",
		Summary:       "Delete team",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		TeamID string `path:"teamId"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTeam(ctx, actorID, input.ID, input.TeamID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
