package hubspot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prudhvinik1/crmsync/internal/config"
	"github.com/prudhvinik1/crmsync/internal/crm"
	"github.com/prudhvinik1/crmsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// call is one request seen by the fake HubSpot server.
type call struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
	List   []any
}

// fakeHubSpot records requests and answers from a route table keyed by
// "METHOD path".
type fakeHubSpot struct {
	mu     sync.Mutex
	calls  []call
	routes map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeHubSpot(t *testing.T) (*fakeHubSpot, *httptest.Server) {
	fake := &fakeHubSpot{routes: make(map[string]func(http.ResponseWriter, *http.Request))}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		c := call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			if data[0] == '[' {
				_ = json.Unmarshal(data, &c.List)
			} else {
				_ = json.Unmarshal(data, &c.Body)
			}
		}
		fake.mu.Lock()
		fake.calls = append(fake.calls, c)
		route, ok := fake.routes[r.Method+" "+r.URL.Path]
		fake.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":"error","message":"not found"}`))
			return
		}
		route(w, r)
	}))
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeHubSpot) on(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func (f *fakeHubSpot) callsTo(method, path string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func testDefinition() *models.SyncDefinition {
	return &models.SyncDefinition{
		Mappings: []models.ProviderMapping{
			{Provider: "hubspot", Fields: models.FieldMap{"name": "firstname", "email": "email"}},
		},
		DeleteRules: models.DeleteRules{
			Hard: map[string]models.DeleteRule{"hubspot": {}},
			Soft: map[string]models.DeleteRule{"hubspot": {Properties: map[string]any{"hs_lead_status": "DELETED"}}},
		},
		ActiveRules: map[string]map[string]any{
			"hubspot": {"lifecyclestage": "customer", "hs_lead_status": "OPEN"},
		},
	}
}

func testRecord() *models.GenericRecord {
	return &models.GenericRecord{
		Type:       "user",
		ID:         "42",
		Fields:     map[string]any{"name": "Ann", "email": "a@b.com"},
		Definition: testDefinition(),
	}
}

func connectedAdapter(t *testing.T, serverURL string) *Adapter {
	factory := NewFactory(config.ProviderConfig{
		RateLimit: 1000,
		Environments: map[string]config.EnvironmentConfig{
			"sandbox": {BaseURI: serverURL, AccessToken: "test-token"},
		},
	}, Options{CallTimeout: 2 * time.Second, RetryBackoff: time.Millisecond})

	a := factory().(*Adapter)
	require.NoError(t, a.Connect(context.Background(), "sandbox", nil))
	rec := testRecord()
	require.NoError(t, a.Setup(rec, "contact", models.FieldMap{"name": "firstname", "email": "email"}))
	return a
}

func TestAdapter_ConnectFailures(t *testing.T) {
	factory := NewFactory(config.ProviderConfig{
		Environments: map[string]config.EnvironmentConfig{"production": {}},
	}, Options{})

	err := factory().Connect(context.Background(), "sandbox", nil)
	assert.True(t, crm.IsRetryable(err))
	assert.Equal(t, crm.CodeProviderConnection, crm.CodeOf(err))

	err = factory().Connect(context.Background(), "production", nil)
	assert.Equal(t, crm.CodeProviderConnection, crm.CodeOf(err), "missing token")
}

func TestAdapter_SetupRequiresConnectAndSupportedType(t *testing.T) {
	_, server := newFakeHubSpot(t)
	a := NewFactory(config.ProviderConfig{}, Options{})().(*Adapter)

	err := a.Setup(testRecord(), "contact", nil)
	assert.True(t, crm.IsFatal(err))

	a = connectedAdapter(t, server.URL)
	err = a.Setup(testRecord(), "invoice", nil)
	assert.True(t, crm.IsFatal(err))
	assert.Equal(t, crm.CodeUnsupportedObjectType, crm.CodeOf(err))
}

func TestAdapter_NothingLoadedAccessors(t *testing.T) {
	a := NewFactory(config.ProviderConfig{}, Options{})()

	assert.False(t, a.ObjectLoaded())
	assert.False(t, a.ObjectItemLoaded())
	assert.Zero(t, a.Total())
	assert.Empty(t, a.Results())
	assert.Nil(t, a.FirstItem())
	assert.Nil(t, a.Paging())
	a.Disconnect()
}

func TestAdapter_SearchByFilters(t *testing.T) {
	fake, server := newFakeHubSpot(t)
	fake.on("POST", "/crm/v3/objects/contacts/search", 200,
		`{"total":1,"results":[{"id":"501","properties":{"email":"a@b.com"}}],"paging":{"next":{"after":"1"}}}`)
	a := connectedAdapter(t, server.URL)

	err := a.Load(context.Background(), "", map[string]any{"email": "a@b.com"})
	require.NoError(t, err)

	assert.True(t, a.ObjectLoaded())
	require.True(t, a.ObjectItemLoaded())
	assert.Equal(t, "501", a.FirstItem().ID)
	assert.Equal(t, 1, a.Total())
	assert.Equal(t, "1", a.Paging().NextAfter)

	calls := fake.callsTo("POST", "/crm/v3/objects/contacts/search")
	require.Len(t, calls, 1)
	assert.EqualValues(t, 1, calls[0].Body["limit"])
	groups := calls[0].Body["filterGroups"].([]any)
	filters := groups[0].(map[string]any)["filters"].([]any)
	assert.Equal(t, map[string]any{"propertyName": "email", "operator": "EQ", "value": "a@b.com"}, filters[0])
}

func TestAdapter_SearchNoResults(t *testing.T) {
	fake, server := newFakeHubSpot(t)
	fake.on("POST", "/crm/v3/objects/contacts/search", 200, `{"total":0,"results":[]}`)
	a := connectedAdapter(t, server.URL)

	require.NoError(t, a.Load(context.Background(), "", map[string]any{"email": "a@b.com"}))

	assert.True(t, a.ObjectLoaded())
	assert.False(t, a.ObjectItemLoaded())
}

func TestAdapter_LoadByIDNotFound(t *testing.T) {
	_, server := newFakeHubSpot(t)
	a := connectedAdapter(t, server.URL)

	err := a.Load(context.Background(), "404404", nil)

	assert.ErrorIs(t, err, crm.ErrRemoteNotFound)
	assert.False(t, a.ObjectItemLoaded())
}

func TestAdapter_LoadByIDFlushesPrevious(t *testing.T) {
	fake, server := newFakeHubSpot(t)
	fake.on("GET", "/crm/v3/objects/contacts/501", 200, `{"id":"501","properties":{"email":"a@b.com"}}`)
	fake.on("GET", "/crm/v3/objects/contacts/502", 500, `{"message":"boom"}`)
	a := connectedAdapter(t, server.URL)

	require.NoError(t, a.Load(context.Background(), "501", nil))
	assert.Equal(t, "501", a.FirstItem().ID)
	assert.Contains(t, fake.callsTo("GET", "/crm/v3/objects/contacts/501")[0].Query, "properties=email%2Cfirstname")

	err := a.Load(context.Background(), "502", nil)
	assert.True(t, crm.IsRetryable(err))
	assert.Equal(t, crm.CodeRemoteAPI, crm.CodeOf(err))
	assert.Nil(t, a.FirstItem())
}

func TestAdapter_CreateMergesActiveRules(t *testing.T) {
	fake, server := newFakeHubSpot(t)
	fake.on("POST", "/crm/v3/objects/contacts", 201, `{"id":"777","properties":{}}`)
	a := connectedAdapter(t, server.URL)

	require.NoError(t, a.Create(context.Background()))

	assert.Equal(t, "777", a.FirstItem().ID)
	calls := fake.callsTo("POST", "/crm/v3/objects/contacts")
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{
		"firstname":      "Ann",
		"email":          "a@b.com",
		"lifecyclestage": "customer",
		"hs_lead_status": "OPEN",
	}, calls[0].Body["properties"])
}

func TestAdapter_CreateFailureLeavesSnapshotUnset(t *testing.T) {
	fake, server := newFakeHubSpot(t)
	fake.on("POST", "/crm/v3/objects/contacts", 400, `{"message":"Property values were not valid"}`)
	a := connectedAdapter(t, server.URL)

	err := a.Create(context.Background())

	assert.True(t, crm.IsRetryable(err))
	assert.Equal(t, crm.CodeRemoteAPI, crm.CodeOf(err))
	assert.False(t, a.ObjectItemLoaded())
}

func TestAdapter_UpdateSendsMappedPropertiesOnly(t *testing.T) {
	fake, server := newFakeHubSpot(t)
	fake.on("GET", "/crm/v3/objects/contacts/501", 200, `{"id":"501"}`)
	fake.on("PATCH", "/crm/v3/objects/contacts/501", 200, `{"id":"501"}`)
	a := connectedAdapter(t, server.URL)

	err := a.Update(context.Background())
	assert.True(t, crm.IsSkip(err), "update needs a loaded item")

	require.NoError(t, a.Load(context.Background(), "501", nil))
	require.NoError(t, a.Update(context.Background()))

	calls := fake.callsTo("PATCH", "/crm/v3/objects/contacts/501")
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"firstname": "Ann", "email": "a@b.com"}, calls[0].Body["properties"])
}

func TestAdapter_RestoreMergesActiveRules(t *testing.T) {
	fake, server := newFakeHubSpot(t)
	fake.on("GET", "/crm/v3/objects/contacts/501", 200, `{"id":"501"}`)
	fake.on("PATCH", "/crm/v3/objects/contacts/501", 200, `{"id":"501"}`)
	a := connectedAdapter(t, server.URL)

	require.NoError(t, a.Load(context.Background(), "501", nil))
	require.NoError(t, a.Restore(context.Background()))

	calls := fake.callsTo("PATCH", "/crm/v3/objects/contacts/501")
	require.Len(t, calls, 1)
	assert.Equal(t, "customer", calls[0].Body["properties"].(map[string]any)["lifecyclestage"])
}

func TestAdapter_Delete(t *testing.T) {
	fake, server := newFakeHubSpot(t)
	fake.on("GET", "/crm/v3/objects/contacts/501", 200, `{"id":"501"}`)
	fake.on("PATCH", "/crm/v3/objects/contacts/501", 200, `{"id":"501"}`)
	fake.on("DELETE", "/crm/v3/objects/contacts/501", 204, ``)
	ctx := context.Background()

	t.Run("soft applies overrides", func(t *testing.T) {
		a := connectedAdapter(t, server.URL)
		require.NoError(t, a.Load(ctx, "501", nil))
		require.NoError(t, a.Delete(ctx, true))

		calls := fake.callsTo("PATCH", "/crm/v3/objects/contacts/501")
		require.NotEmpty(t, calls)
		assert.Equal(t, map[string]any{"hs_lead_status": "DELETED"}, calls[len(calls)-1].Body["properties"])
		assert.True(t, a.ObjectItemLoaded())
	})

	t.Run("hard archives and flushes", func(t *testing.T) {
		a := connectedAdapter(t, server.URL)
		require.NoError(t, a.Load(ctx, "501", nil))
		require.NoError(t, a.Delete(ctx, false))

		assert.Len(t, fake.callsTo("DELETE", "/crm/v3/objects/contacts/501"), 1)
		assert.False(t, a.ObjectItemLoaded())
	})

	t.Run("disabled rule is a no-op", func(t *testing.T) {
		a := connectedAdapter(t, server.URL)
		a.definition.DeleteRules.Hard["hubspot"] = models.DeleteRule{Disabled: true}
		require.NoError(t, a.Load(ctx, "501", nil))
		before := len(fake.callsTo("DELETE", "/crm/v3/objects/contacts/501"))

		require.NoError(t, a.Delete(ctx, false))

		assert.Len(t, fake.callsTo("DELETE", "/crm/v3/objects/contacts/501"), before)
		assert.True(t, a.ObjectItemLoaded())
	})

	t.Run("missing rule is skipped", func(t *testing.T) {
		a := connectedAdapter(t, server.URL)
		delete(a.definition.DeleteRules.Soft, "hubspot")
		require.NoError(t, a.Load(ctx, "501", nil))

		err := a.Delete(ctx, true)
		assert.True(t, crm.IsSkip(err))
	})
}

const assocPath = "/crm/v4/objects/contacts/501/associations/companies"

func loadedForAssociation(t *testing.T) (*fakeHubSpot, *Adapter) {
	fake, server := newFakeHubSpot(t)
	fake.on("GET", "/crm/v3/objects/contacts/501", 200, `{"id":"501"}`)
	a := connectedAdapter(t, server.URL)
	require.NoError(t, a.Load(context.Background(), "501", nil))
	return fake, a
}

func TestAdapter_AssociateSatisfiedIsNoop(t *testing.T) {
	fake, a := loadedForAssociation(t)
	fake.on("GET", assocPath, 200, `{"results":[{"toObjectId":900,"associationTypes":[
		{"category":"HUBSPOT_DEFINED","typeId":279,"label":null},
		{"category":"HUBSPOT_DEFINED","typeId":1,"label":"Primary"}]}]}`)

	err := a.Associate(context.Background(), "company", "900", []models.AssociationSpec{
		{Category: CategoryHubSpotDefined, TypeID: TypeContactToCompanyPrimary},
		{Category: CategoryHubSpotDefined, TypeID: TypeContactToCompany},
	})

	require.NoError(t, err)
	assert.Empty(t, fake.callsTo("PUT", assocPath+"/900"))
	assert.Empty(t, fake.callsTo("DELETE", assocPath+"/900"))
}

func TestAdapter_AssociateMismatchRecreates(t *testing.T) {
	fake, a := loadedForAssociation(t)
	fake.on("GET", assocPath, 200, `{"results":[
		{"toObjectId":900,"associationTypes":[{"category":"A","typeId":2}]},
		{"toObjectId":901,"associationTypes":[{"category":"A","typeId":1}]}]}`)
	fake.on("DELETE", assocPath+"/900", 204, ``)
	fake.on("DELETE", assocPath+"/901", 204, ``)
	fake.on("PUT", assocPath+"/900", 200, `{}`)

	err := a.Associate(context.Background(), "company", "900", []models.AssociationSpec{{Category: "A", TypeID: 1}})

	require.NoError(t, err)
	assert.Len(t, fake.callsTo("DELETE", assocPath+"/900"), 1)
	assert.Len(t, fake.callsTo("DELETE", assocPath+"/901"), 1)
	puts := fake.callsTo("PUT", assocPath+"/900")
	require.Len(t, puts, 1)
	assert.Equal(t, []any{map[string]any{"associationCategory": "A", "associationTypeId": float64(1)}}, puts[0].List)
}

func TestAdapter_AssociateFollowsPaging(t *testing.T) {
	fake, a := loadedForAssociation(t)
	fake.routes["GET "+assocPath] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			w.Write([]byte(`{"results":[{"toObjectId":1,"associationTypes":[]}],"paging":{"next":{"after":"p2"}}}`))
			return
		}
		w.Write([]byte(`{"results":[{"toObjectId":900,"associationTypes":[{"category":"A","typeId":1}]}]}`))
	}
	fake.on("DELETE", assocPath+"/1", 204, ``)

	err := a.Associate(context.Background(), "company", "900", []models.AssociationSpec{{Category: "A", TypeID: 1}})

	require.NoError(t, err)
	assert.Len(t, fake.callsTo("GET", assocPath), 2)
	assert.Len(t, fake.callsTo("DELETE", assocPath+"/1"), 1)
	assert.Empty(t, fake.callsTo("PUT", assocPath+"/900"))
}

func TestAdapter_AssociateEmptySpecsIsNoop(t *testing.T) {
	fake, a := loadedForAssociation(t)

	require.NoError(t, a.Associate(context.Background(), "company", "900", nil))
	assert.Empty(t, fake.callsTo("GET", assocPath))

	err := a.Associate(context.Background(), "invoice", "900", []models.AssociationSpec{{Category: "A", TypeID: 1}})
	assert.Equal(t, crm.CodeAssociation, crm.CodeOf(err))
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 2, 6, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{42, "42"},
		{int64(7), "7"},
		{3.5, "3.5"},
		{float64(42), "42"},
		{ts, "1707177600000"},
		{&ts, "1707177600000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatValue(tt.in))
	}
}
