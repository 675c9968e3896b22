package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grantor/pkg/catalog"
	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/history"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/orchestrator"
	"github.com/platinummonkey/grantor/pkg/platform"
	"github.com/platinummonkey/grantor/pkg/retry"
)

const testCatalogYAML = `version: "1"
templates:
  readonly:
    description: Read-only console access
    managed_policy_arns:
      - arn:aws:iam::aws:policy/ReadOnlyAccess
    session_duration: PT4H
  poweruser:
    description: Power user access
    managed_policy_arns:
      - arn:aws:iam::aws:policy/PowerUserAccess
`

type apiEnv struct {
	server   *Server
	identity *identity.Fake
	platform *platform.Fake
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	idFake := identity.NewFake()
	pfFake := platform.NewFake()
	pfFake.SyncedByDefault = true

	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogYAML), 0o644))

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	cat, err := catalog.Load(path, logger)
	require.NoError(t, err)

	orch := orchestrator.New(orchestrator.Deps{
		Identity:  idFake,
		Platform:  pfFake,
		Templates: cat,
		History:   history.NewMemoryStore(),
		Logger:    logger,
	}, orchestrator.Config{
		EnterpriseAppID: "app-00000000",
		EnvironmentAccounts: map[grant.Environment]string{
			grant.EnvironmentDev: "111111111111",
			grant.EnvironmentQA:  "222222222222",
		},
		ProvisioningTimeout:      time.Second,
		ProvisioningPollInterval: time.Millisecond,
		SyncPollAttempts:         3,
		SyncPollInterval:         time.Millisecond,
	})
	orch.SetRetryConfig(retry.Config{MaxAttempts: 1})

	return &apiEnv{
		server:   NewServer(orch, cat, logger, nil),
		identity: idFake,
		platform: pfFake,
	}
}

func (e *apiEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest))
}

func validGrantBody() grant.AccessGrantRequest {
	return grant.AccessGrantRequest{
		Environment:        grant.EnvironmentDev,
		TicketID:           "AG-0042",
		Owners:             []string{"owner@example.com"},
		Members:            []string{"member@example.com"},
		PermissionTemplate: "readonly",
	}
}

// createGrant drives a full grant through the API and returns the result.
func (e *apiEnv) createGrant(t *testing.T) grant.AccessGrantResult {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/grants", validGrantBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result grant.AccessGrantResult
	decodeInto(t, w, &result)
	return result
}

// seedAssignmentTargets prepares a synced group and a permission set for
// the lightweight assignment flow.
func (e *apiEnv) seedAssignmentTargets(t *testing.T, groupID, groupName string) string {
	t.Helper()
	e.identity.SeedGroup(identity.Group{
		ID:          groupID,
		DisplayName: groupName,
		CreatedAt:   time.Now().UTC(),
	})
	ps, err := e.platform.CreatePermissionSet(context.Background(), platform.PermissionSetSpec{Name: groupName})
	require.NoError(t, err)
	return ps.Ref
}
