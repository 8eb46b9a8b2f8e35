package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ShovalB85/RasApp/internal/config"
	"github.com/ShovalB85/RasApp/internal/db"
	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
	"github.com/ShovalB85/RasApp/internal/logging"
	"github.com/ShovalB85/RasApp/internal/migrate"
	"github.com/ShovalB85/RasApp/internal/repo"
)

const (
	testSecret        = "test-secret"
	testAdminPassword = "admin-password"
)

type testServer struct {
	URL    string
	Admin  domain.Person
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.Auth.JWTSecret = testSecret
	cfg.Seed.AdminPassword = testAdminPassword

	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(ctx, conn.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(repo.NewSQLStore(conn), cfg, logging.Discard())
	admin, _, err := e.EnsurePrimaryAdmin(ctx, cfg.Seed)
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/api",
		Auth:     AuthConfig{JWTSecret: cfg.Auth.JWTSecret, TokenTTL: time.Hour},
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String() + "/api",
		Admin:  admin,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func login(t *testing.T, srv *testServer, personalNumber, password string) LoginResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/auth/login", LoginRequest{PersonalNumber: personalNumber, Password: password}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	return decode[LoginResponse](t, data)
}

func TestHealthIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "ok", decode[map[string]string](t, data)["status"])
}

func TestRequestsWithoutValidTokenAreRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	cases := map[string]map[string]string{
		"missing":   nil,
		"malformed": {"Authorization": "Token abc"},
		"forged":    bearer("not.a.jwt"),
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/me", nil, headers)
			require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
			assert.Equal(t, "unauthenticated", decode[errorEnvelope](t, data).Error.Code)
		})
	}
}

func TestLoginWithWrongPassword(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/auth/login", LoginRequest{PersonalNumber: srv.Admin.PersonalNumber, Password: "wrong-password"}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "unauthenticated", decode[errorEnvelope](t, data).Error.Code)
}

func TestCustodyOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	adminLogin := login(t, srv, srv.Admin.PersonalNumber, testAdminPassword)
	require.NotEmpty(t, adminLogin.Token)
	admin := bearer(adminLogin.Token)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/me", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, srv.Admin.ID, decode[domain.Person](t, data).ID)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/deployments", CreateDeploymentRequest{FrameworkID: srv.Admin.FrameworkID, Name: "North"}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	dep := decode[domain.Deployment](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/frameworks/"+srv.Admin.FrameworkID+"/people", engine.PersonInput{Name: "Dana", PersonalNumber: "1234567", Role: domain.RoleMember}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	member := decode[domain.Person](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/deployments/"+dep.ID+"/participants", ParticipantsRequest{PersonIDs: []string{member.ID}}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/deployments/"+dep.ID+"/inventory", map[string]any{
		"lines": []map[string]any{{"name": "Vest", "tracks_serial": false, "no_serial_quantity": 10}},
	}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	added := decode[[]engine.ItemResult](t, data)
	require.Len(t, added, 1)
	vest := added[0].Item
	assert.Equal(t, 10, vest.Quantity)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/people/"+member.ID+"/assigned-items", AssignRequest{InventoryItemID: vest.ID, Quantity: 4, Provider: "Supply"}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	assigned := decode[domain.AssignedItem](t, data)
	assert.Equal(t, 4, assigned.Quantity)
	assert.Equal(t, "Supply", assigned.Provider)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/deployments/"+dep.ID+"/inventory", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	views := decode[[]engine.ItemView](t, data)
	require.Len(t, views, 1)
	assert.Equal(t, 4, views[0].Assigned)
	assert.Equal(t, 6, views[0].Available)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/deployments/"+dep.ID+"/inventory/"+vest.ID+"/quantity", QuantityRequest{Quantity: 3}, admin)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	floor := decode[errorEnvelope](t, data)
	assert.Equal(t, "below_assigned_floor", floor.Error.Code)
	assert.EqualValues(t, 4, floor.Error.Details["minimum"])

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/people/"+member.ID+"/assigned-items", AssignRequest{InventoryItemID: vest.ID, Quantity: 7}, admin)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "insufficient_stock", decode[errorEnvelope](t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/deployments/"+dep.ID+"/inventory/"+vest.ID+"/quantity", map[string]any{"quantity": int64(1) << 40}, admin)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/deployments/other/inventory/"+vest.ID+"/quantity", QuantityRequest{Quantity: 5}, admin)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))

	// first login of the new member
	first := login(t, srv, member.PersonalNumber, "")
	assert.True(t, first.NeedsPassword)
	assert.Empty(t, first.Token)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/auth/set-password", SetPasswordRequest{PersonalNumber: member.PersonalNumber, Password: "member-password"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	memberLogin := decode[LoginResponse](t, data)
	require.NotEmpty(t, memberLogin.Token)
	memberAuth := bearer(memberLogin.Token)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/me", nil, memberAuth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[domain.Person](t, data)
	require.Len(t, me.AssignedItems, 1)
	assert.Equal(t, "Vest", me.AssignedItems[0].Name)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/deployments/"+dep.ID+"/inventory", map[string]any{
		"lines": []map[string]any{{"name": "Helmet", "tracks_serial": false, "no_serial_quantity": 1}},
	}, memberAuth)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	assert.Equal(t, "permission_denied", decode[errorEnvelope](t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/events?deployment_id="+dep.ID+"&limit=2", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page := decode[EventPage](t, data)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "custody.assigned", page.Items[0].Type)
	require.NotEmpty(t, page.NextCursor)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/events?deployment_id="+dep.ID+"&cursor="+page.NextCursor, nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	rest := decode[EventPage](t, data)
	for _, ev := range rest.Items {
		assert.Less(t, ev.ID, page.Items[1].ID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/events", nil, memberAuth)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
}

func TestSnapshotExportAndRestore(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := bearer(login(t, srv, srv.Admin.PersonalNumber, testAdminPassword).Token)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/deployments", CreateDeploymentRequest{FrameworkID: srv.Admin.FrameworkID, Name: "South"}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, snap := doJSON(t, client, http.MethodGet, srv.URL+"/snapshot", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(snap))

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/deployments/"+decode[domain.Deployment](t, data).ID, nil, admin)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/snapshot", bytes.NewReader(snap))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", admin["Authorization"])
	putRes, err := client.Do(req)
	require.NoError(t, err)
	putRes.Body.Close()
	require.Equal(t, http.StatusNoContent, putRes.StatusCode)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/deployments", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	deps := decode[[]domain.Deployment](t, data)
	require.Len(t, deps, 1)
	assert.Equal(t, "South", deps[0].Name)
}
