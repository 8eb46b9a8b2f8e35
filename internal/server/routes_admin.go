package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
	"github.com/ShovalB85/RasApp/internal/repo"
)

func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Custody audit log, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		DeploymentID string `query:"deployment_id"`
		Type         string `query:"type"`
		EntityKind   string `query:"entity_kind" enum:"item,assignment,person,deployment,framework,team,task,snapshot"`
		EntityID     string `query:"entity_id"`
		Limit        int    `query:"limit" default:"50"`
		Cursor       string `query:"cursor"`
	}) (*out[EventPage], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := e.ListEvents(ctx, actorID, repo.EventFilter{
			DeploymentID: input.DeploymentID,
			Type:         input.Type,
			EntityKind:   input.EntityKind,
			EntityID:     input.EntityID,
			BeforeID:     before,
			Limit:        limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		page := EventPage{Items: []domain.Event{}}
		if len(items) > limit {
			items = items[:limit]
			page.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		page.Items = append(page.Items, items...)
		return reply(page), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-snapshot",
		Method:      http.MethodGet,
		Path:        "/snapshot",
		Summary:     "Export all state",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*out[domain.Snapshot], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := e.Export(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(snap), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "restore-snapshot",
		Method:        http.MethodPut,
		Path:          "/snapshot",
		Summary:       "Replace all state with a snapshot",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/json"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(input.RawBody, &snap); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid snapshot", map[string]any{"error": err.Error()})
		}
		if err := e.Restore(ctx, actorID, snap); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
