package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	actiondomain "github.com/pantheonhq/pantheon/internal/action/domain"
	actionservice "github.com/pantheonhq/pantheon/internal/action/service"
	authdomain "github.com/pantheonhq/pantheon/internal/auth/domain"
	authservice "github.com/pantheonhq/pantheon/internal/auth/service"
	"github.com/pantheonhq/pantheon/internal/auth/token"
	"github.com/pantheonhq/pantheon/internal/authorization"
	bundleservice "github.com/pantheonhq/pantheon/internal/bundle/service"
	"github.com/pantheonhq/pantheon/internal/config"
	"github.com/pantheonhq/pantheon/internal/identity"
	oracledomain "github.com/pantheonhq/pantheon/internal/oracle/domain"
	oracleservice "github.com/pantheonhq/pantheon/internal/oracle/service"
	playerdomain "github.com/pantheonhq/pantheon/internal/player/domain"
	playerservice "github.com/pantheonhq/pantheon/internal/player/service"
)

const testServiceToken = "test-service-token"

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&authdomain.User{},
		&playerdomain.PlayerAccount{},
		&oracledomain.OracleProfile{},
		&actiondomain.OracleAction{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	issuer, err := token.NewIssuer("test-secret", 0)
	require.NoError(t, err)

	authSvc := authservice.New(log, db, issuer, node)
	identitySvc := identity.NewService(log, db)
	playerSvc := playerservice.NewService(playerservice.ServiceParam{
		DB: db, Log: log, GenID: node, Identity: identitySvc,
	})
	oracleSvc := oracleservice.NewService(oracleservice.ServiceParam{
		DB: db, Log: log, GenID: node, Identity: identitySvc,
	})
	actionSvc := actionservice.NewService(actionservice.ServiceParam{
		DB: db, Log: log, GenID: node,
		Limits: config.NewStaticLimitsHolder(config.LimitsConfig{
			ListDefaultLimit:  25,
			ListMaxLimit:      500,
			StatsDefaultLimit: 200,
			StatsMaxLimit:     1000,
			BulkMaxActions:    100,
		}),
	})
	bundleSvc := bundleservice.NewService(bundleservice.Params{
		DB: db, Log: log,
		ActionSvc: actionSvc, PlayerSvc: playerSvc, OracleSvc: oracleSvc,
	})

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{
		DB: db, Log: log, Enforcer: enforcer,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:      engine,
		cfg:         config.Config{ServiceToken: testServiceToken},
		db:          db,
		genID:       node,
		authSvc:     authSvc,
		identitySvc: identitySvc,
		authzSvc:    authzSvc,
		playerSvc:   playerSvc,
		oracleSvc:   oracleSvc,
		actionSvc:   actionSvc,
		bundleSvc:   bundleSvc,
	}
	srv.registerAuthRoutes()
	srv.registerGPTRoutes()
	srv.registerAdminRoutes()

	return srv, db
}

func doRequest(t *testing.T, srv *Server, method, path, bearer string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp := httptest.NewRecorder()
	srv.engine.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func registerAndLogin(t *testing.T, srv *Server, email, password string) string {
	t.Helper()

	resp := doRequest(t, srv, http.MethodPost, "/auth/register", "", gin.H{
		"email": email, "password": password,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = doRequest(t, srv, http.MethodPost, "/auth/login", "", gin.H{
		"email": email, "password": password,
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decodeBody(t, resp)["access_token"].(string)
}

func setupOwner(t *testing.T, srv *Server, email string) (string, string, string) {
	t.Helper()
	bearer := registerAndLogin(t, srv, email, "long-enough-password")

	resp := doRequest(t, srv, http.MethodPost, "/gpt/player-account", bearer, gin.H{
		"username": "hero-" + email,
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	playerID := decodeBody(t, resp)["player_account"].(map[string]any)["PlayerID"].(string)

	resp = doRequest(t, srv, http.MethodPost, "/gpt/oracle", bearer, gin.H{
		"name": "Delphi",
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	oracleID := decodeBody(t, resp)["oracle"].(map[string]any)["OracleID"].(string)

	return bearer, oracleID, playerID
}

func TestAuthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/auth/register", "", gin.H{
		"email": "pythia@example.com", "password": "delphic-smoke",
	}, nil)
	assert.Equal(t, http.StatusCreated, resp.Code)

	resp = doRequest(t, srv, http.MethodPost, "/auth/register", "", gin.H{
		"email": "pythia@example.com", "password": "delphic-smoke",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = doRequest(t, srv, http.MethodPost, "/auth/login", "", gin.H{
		"email": "pythia@example.com", "password": "wrong-password",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doRequest(t, srv, http.MethodPost, "/auth/login", "", gin.H{
		"email": "pythia@example.com", "password": "delphic-smoke",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["access_token"])
	assert.Equal(t, "bearer", body["token_type"])
}

func TestGPTEndpointsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/gpt/player-account", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doRequest(t, srv, http.MethodGet, "/gpt/oracle-actions", "garbage-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestActionLedgerEndToEnd(t *testing.T) {
	srv, _ := newTestServer(t)
	bearer, oracleID, playerID := setupOwner(t, srv, "owner@example.com")

	record := gin.H{
		"oracle_id":        oracleID,
		"player_id":        playerID,
		"action":           "pray",
		"client_action_id": "client-1",
		"metadata":         gin.H{"temple": "delphi"},
	}

	resp := doRequest(t, srv, http.MethodPost, "/gpt/oracle-action", bearer, record, nil)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, false, decodeBody(t, resp)["deduplicated"])

	// Replaying the same client action id resolves to the existing row.
	resp = doRequest(t, srv, http.MethodPost, "/gpt/oracle-action", bearer, record, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, true, decodeBody(t, resp)["deduplicated"])

	resp = doRequest(t, srv, http.MethodPost, "/gpt/oracle-actions/bulk", bearer, gin.H{
		"actions": []gin.H{
			{"oracle_id": oracleID, "player_id": playerID, "action": "offer"},
			{"oracle_id": oracleID, "player_id": playerID, "action": "pray", "client_action_id": "client-1"},
		},
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	bulk := decodeBody(t, resp)
	assert.Equal(t, float64(1), bulk["inserted"])
	assert.Equal(t, float64(1), bulk["deduplicated"])

	resp = doRequest(t, srv, http.MethodGet, "/gpt/oracle-actions", bearer, nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	list := decodeBody(t, resp)
	assert.Len(t, list["records"], 2)
	meta := list["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["total_available"])
	assert.Equal(t, "desc", meta["order"])

	resp = doRequest(t, srv, http.MethodGet, "/gpt/oracle-action-stats", bearer, nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	stats := decodeBody(t, resp)
	counts := stats["counts"].(map[string]any)
	assert.Equal(t, float64(1), counts["pray"])
	assert.Equal(t, float64(1), counts["offer"])
	assert.Equal(t, float64(2), stats["meta"].(map[string]any)["rows_aggregated"])
}

func TestOwnershipDenialIsUniform(t *testing.T) {
	srv, _ := newTestServer(t)
	_, oracleA, _ := setupOwner(t, srv, "alice@example.com")
	bearerB, _, playerB := setupOwner(t, srv, "bob@example.com")

	// Writing against another owner's oracle and probing a non-existent
	// oracle produce the same response shape.
	resp := doRequest(t, srv, http.MethodPost, "/gpt/oracle-action", bearerB, gin.H{
		"oracle_id": oracleA, "player_id": playerB, "action": "steal",
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	existing := resp.Body.String()

	resp = doRequest(t, srv, http.MethodPost, "/gpt/oracle-action", bearerB, gin.H{
		"oracle_id": "no-such-oracle", "player_id": playerB, "action": "steal",
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.JSONEq(t, existing, resp.Body.String())

	// Reads narrow-filtered to another owner's ids are equally opaque.
	resp = doRequest(t, srv, http.MethodGet, "/gpt/oracle-actions?oracle_id="+oracleA, bearerB, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestListActionsRejectsBadQueryParams(t *testing.T) {
	srv, _ := newTestServer(t)
	bearer, _, _ := setupOwner(t, srv, "carol@example.com")

	resp := doRequest(t, srv, http.MethodGet, "/gpt/oracle-actions?order=sideways", bearer, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, srv, http.MethodGet, "/gpt/oracle-actions?since=not-a-date", bearer, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, srv, http.MethodGet, "/gpt/oracle-actions?limit=abc", bearer, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSyncBundle(t *testing.T) {
	srv, _ := newTestServer(t)
	bearer, oracleID, playerID := setupOwner(t, srv, "dave@example.com")

	resp := doRequest(t, srv, http.MethodPost, "/gpt/oracle-action", bearer, gin.H{
		"oracle_id": oracleID, "player_id": playerID, "action": "pray",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = doRequest(t, srv, http.MethodGet, "/gpt/sync?include_actions=true&include_action_stats=true", bearer, nil, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := decodeBody(t, resp)

	assert.NotNil(t, body["player_account"])
	assert.Len(t, body["oracles"], 1)
	assert.Len(t, body["actions"], 1)
	assert.NotNil(t, body["actions_meta"])
	assert.Equal(t, float64(1), body["action_stats"].(map[string]any)["pray"])
	assert.NotNil(t, body["action_stats_meta"])

	// Without the include flags the optional blocks stay absent.
	resp = doRequest(t, srv, http.MethodGet, "/gpt/sync", bearer, nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body = decodeBody(t, resp)
	assert.NotContains(t, body, "actions")
	assert.NotContains(t, body, "action_stats")

	// An invalid stats parameter set rejects the whole call.
	resp = doRequest(t, srv, http.MethodGet, "/gpt/sync?include_actions=true&include_action_stats=true&stats_order=sideways", bearer, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminPurge(t *testing.T) {
	srv, db := newTestServer(t)
	_, oracleID, playerID := setupOwner(t, srv, "victim@example.com")
	adminBearer := registerAndLogin(t, srv, "admin@example.com", "long-enough-password")
	require.NoError(t, db.Model(&authdomain.User{}).
		Where("email = ?", "admin@example.com").
		Update("role", authdomain.RoleAdmin).Error)

	purgeReq := gin.H{"email": "victim@example.com", "delete_user": true}

	// Missing service token.
	resp := doRequest(t, srv, http.MethodPost, "/admin/purge-user", adminBearer, purgeReq, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	svcHeader := map[string]string{HeaderServiceToken: testServiceToken}

	// A player role cannot purge even with the service token.
	playerBearer := registerAndLogin(t, srv, "nobody@example.com", "long-enough-password")
	resp = doRequest(t, srv, http.MethodPost, "/admin/purge-user", playerBearer, purgeReq, svcHeader)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(t, srv, http.MethodPost, "/admin/purge-user", adminBearer, purgeReq, svcHeader)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	purged := decodeBody(t, resp)["purged"].(map[string]any)
	assert.Equal(t, float64(1), purged["oracles_deleted"])
	assert.Equal(t, float64(1), purged["player_accounts_deleted"])
	assert.Equal(t, float64(1), purged["users_deleted"])

	var count int64
	require.NoError(t, db.Model(&oracledomain.OracleProfile{}).Where("oracle_id = ?", oracleID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&playerdomain.PlayerAccount{}).Where("player_id = ?", playerID).Count(&count).Error)
	assert.Zero(t, count)

	// Purging again finds no target.
	resp = doRequest(t, srv, http.MethodPost, "/admin/purge-user", adminBearer, purgeReq, svcHeader)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestStoreOutageReturnsServiceUnavailable(t *testing.T) {
	srv, db := newTestServer(t)
	tok := registerAndLogin(t, srv, "keeper@example.com", "sanctum-pass")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	resp := doRequest(t, srv, http.MethodGet, "/gpt/oracle-actions", tok, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	body := decodeBody(t, resp)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "service_unavailable", errBody["type"])
}

func TestSyncBundleEmptyWindowsKeepRequestedKeys(t *testing.T) {
	srv, _ := newTestServer(t)
	tok := registerAndLogin(t, srv, "sibyl@example.com", "sanctum-pass")

	resp := doRequest(t, srv, http.MethodGet,
		"/gpt/sync?include_actions=true&include_action_stats=true", tok, nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	body := decodeBody(t, resp)

	actions, ok := body["actions"].([]any)
	require.True(t, ok, "actions must be present as a list")
	assert.Empty(t, actions)
	require.Contains(t, body, "actions_meta")

	stats, ok := body["action_stats"].(map[string]any)
	require.True(t, ok, "action_stats must be present as an object")
	assert.Empty(t, stats)
	require.Contains(t, body, "action_stats_meta")
}
