// Package hubspot implements crm.Provider on top of the HubSpot CRM v3
// objects API and the v4 associations API.
package hubspot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/prudhvinik1/crmsync/internal/config"
	"github.com/prudhvinik1/crmsync/internal/crm"
	"github.com/prudhvinik1/crmsync/internal/httpclient"
	"github.com/prudhvinik1/crmsync/internal/logging"
	"github.com/prudhvinik1/crmsync/internal/models"
	"golang.org/x/time/rate"
)

const ProviderName = "hubspot"

const (
	defaultBaseURI = "https://api.hubapi.com"

	associationPageSize = 500
	// associationMaxPages bounds how many links are read toward one target
	// type. Links beyond the cap are neither compared nor removed.
	associationMaxPages = 20
)

// Options tune the transport. Zero values use the httpclient defaults.
type Options struct {
	CallTimeout  time.Duration
	RetryBackoff time.Duration
	Transport    http.RoundTripper
}

// NewFactory returns a factory for adapters sharing one rate limiter per
// environment, since HubSpot limits are per account.
func NewFactory(cfg config.ProviderConfig, opts Options) crm.Factory {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 10
	}
	limiters := make(map[string]*rate.Limiter, len(cfg.Environments))
	for env := range cfg.Environments {
		limiters[env] = httpclient.NewLimiter(rps)
	}

	return func() crm.Provider {
		return &Adapter{
			environments: cfg.Environments,
			limiters:     limiters,
			opts:         opts,
		}
	}
}

// Register binds the HubSpot factory in r.
func Register(r *crm.Registry, cfg config.ProviderConfig, opts Options) {
	r.Register(ProviderName, NewFactory(cfg, opts))
}

// Adapter is a single-use HubSpot provider.
type Adapter struct {
	environments map[string]config.EnvironmentConfig
	limiters     map[string]*rate.Limiter
	opts         Options

	log         *logging.Logger
	environment string
	client      *httpclient.Client

	objectType  string
	properties  map[string]string
	definition  *models.SyncDefinition
	activeRules map[string]string

	loaded  bool
	total   int
	results []crm.Item
	paging  *crm.Paging
}

var _ crm.Provider = (*Adapter)(nil)

func (a *Adapter) Name() string { return ProviderName }

func (a *Adapter) SupportsObjectType(remoteType string) bool {
	_, ok := objectPaths[remoteType]
	return ok
}

func (a *Adapter) Connect(ctx context.Context, environment string, log *logging.Logger) error {
	if log == nil {
		log = logging.Discard()
	}
	a.log = log.Scope(ProviderName)

	env, ok := a.environments[environment]
	if !ok {
		return a.connectError(environment, fmt.Errorf("environment %q is not configured", environment))
	}
	if env.AccessToken == "" {
		return a.connectError(environment, errors.New("access token is not configured"))
	}

	baseURI := env.BaseURI
	if baseURI == "" {
		baseURI = defaultBaseURI
	}
	if _, err := url.ParseRequestURI(baseURI); err != nil {
		return a.connectError(environment, fmt.Errorf("invalid base uri: %w", err))
	}

	a.environment = environment
	a.client = httpclient.New(httpclient.Config{
		BaseURL:      baseURI,
		Auth:         httpclient.BearerToken{Token: env.AccessToken},
		Timeout:      a.opts.CallTimeout,
		RetryBackoff: a.opts.RetryBackoff,
		Limiter:      a.limiters[environment],
		Transport:    a.opts.Transport,
	})
	a.log.Debug(logging.LevelMid, "connected", "environment", environment, "base_uri", baseURI)
	return nil
}

func (a *Adapter) connectError(environment string, err error) error {
	return crm.Retryable(crm.CodeProviderConnection, "connect", err).In(ProviderName, environment)
}

func (a *Adapter) Disconnect() {
	if a.client == nil {
		return
	}
	a.client = nil
	a.flush()
	a.log.Debug(logging.LevelMid, "disconnected", "environment", a.environment)
}

func (a *Adapter) Setup(record models.Record, remoteType string, fields models.FieldMap) error {
	if a.client == nil {
		return a.fatal(crm.CodeConfiguration, "setup", "adapter is not connected")
	}
	if !a.SupportsObjectType(remoteType) {
		return a.fatal(crm.CodeUnsupportedObjectType, "setup", "object type %q is not supported", remoteType)
	}

	a.objectType = remoteType
	a.definition = record.SyncDefinition()
	a.properties = make(map[string]string, len(fields))
	for local, remote := range fields {
		v, ok := record.Field(local)
		if !ok {
			a.log.Warn(logging.LevelMid, "mapped field missing on record", "field", local, "local_type", record.LocalType())
			continue
		}
		a.properties[remote] = formatValue(v)
	}

	a.activeRules = nil
	if a.definition != nil {
		if rules, ok := a.definition.ActiveRules[ProviderName]; ok {
			a.activeRules = formatProperties(rules)
		}
	}
	return nil
}

func (a *Adapter) Load(ctx context.Context, remoteID string, filters map[string]any) error {
	a.flush()
	if a.objectType == "" {
		return a.fatal(crm.CodeConfiguration, "load", "setup was not called")
	}

	if remoteID != "" {
		return a.loadByID(ctx, remoteID)
	}
	if len(filters) == 0 {
		a.log.Debug(logging.LevelLow, "no id or filters, nothing to load", "object_type", a.objectType)
		return nil
	}
	return a.search(ctx, filters)
}

func (a *Adapter) loadByID(ctx context.Context, remoteID string) error {
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	query := url.Values{}
	if props := a.propertyNames(); len(props) > 0 {
		query.Set("properties", strings.Join(props, ","))
	}

	resp, err := a.client.Get(ctx, a.objectPath(remoteID), query)
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) && httpErr.IsNotFound() {
		a.log.Info(logging.LevelMid, "remote object not found", "object_type", a.objectType, "remote_id", remoteID)
		return crm.ErrRemoteNotFound
	}
	if err != nil {
		return a.remoteError("load", err)
	}

	var obj objectResponse
	if err := resp.JSON(&obj); err != nil {
		return a.remoteError("load", fmt.Errorf("decode object: %w", err))
	}
	a.setItem(obj)
	return nil
}

func (a *Adapter) search(ctx context.Context, filters map[string]any) error {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	group := filterGroup{}
	for _, name := range names {
		group.Filters = append(group.Filters, filter{
			PropertyName: name,
			Operator:     "EQ",
			Value:        formatValue(filters[name]),
		})
	}

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	resp, err := a.client.Post(ctx, a.objectPath("search"), searchRequest{
		FilterGroups: []filterGroup{group},
		Properties:   a.propertyNames(),
		Limit:        1,
	})
	if err != nil {
		return a.remoteError("search", err)
	}

	var out searchResponse
	if err := resp.JSON(&out); err != nil {
		return a.remoteError("search", fmt.Errorf("decode search: %w", err))
	}

	a.loaded = true
	a.total = out.Total
	for _, obj := range out.Results {
		a.results = append(a.results, toItem(obj))
	}
	if out.Paging != nil && out.Paging.Next != nil {
		a.paging = &crm.Paging{NextAfter: out.Paging.Next.After}
	}
	a.log.Debug(logging.LevelLow, "search complete", "object_type", a.objectType, "total", out.Total)
	return nil
}

func (a *Adapter) Create(ctx context.Context) error {
	a.flush()
	if len(a.properties) == 0 {
		return a.skip(crm.CodeValidation, "create", "no properties to send")
	}

	props := mergeProperties(a.properties, a.activeRules)

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	resp, err := a.client.Post(ctx, a.objectPath(""), propertiesRequest{Properties: props})
	if err != nil {
		return a.remoteError("create", err)
	}

	var obj objectResponse
	if err := resp.JSON(&obj); err != nil {
		return a.remoteError("create", fmt.Errorf("decode object: %w", err))
	}
	a.setItem(obj)
	a.log.Info(logging.LevelHigh, "remote object created", "object_type", a.objectType, "remote_id", obj.ID)
	return nil
}

func (a *Adapter) Update(ctx context.Context) error {
	return a.patch(ctx, "update", a.properties)
}

func (a *Adapter) Restore(ctx context.Context) error {
	return a.patch(ctx, "restore", mergeProperties(a.properties, a.activeRules))
}

func (a *Adapter) Delete(ctx context.Context, soft bool) error {
	item := a.FirstItem()
	if item == nil {
		return a.skip(crm.CodeValidation, "delete", "no item loaded")
	}

	mode := "hard"
	if soft {
		mode = "soft"
	}
	rule, ok := a.definition.DeleteRule(ProviderName, soft)
	if !ok {
		return a.skip(crm.CodeConfiguration, "delete", "no %s delete rule declared", mode)
	}
	if rule.Disabled {
		a.log.Info(logging.LevelMid, "delete disabled by rule", "mode", mode, "remote_id", item.ID)
		return nil
	}

	if soft {
		if len(rule.Properties) == 0 {
			a.log.Info(logging.LevelMid, "soft delete rule has no properties", "remote_id", item.ID)
			return nil
		}
		return a.patch(ctx, "delete", formatProperties(rule.Properties))
	}

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if _, err := a.client.Delete(ctx, a.objectPath(item.ID)); err != nil {
		return a.remoteError("delete", err)
	}
	a.log.Info(logging.LevelHigh, "remote object archived", "object_type", a.objectType, "remote_id", item.ID)
	a.flush()
	return nil
}

func (a *Adapter) patch(ctx context.Context, op string, props map[string]string) error {
	item := a.FirstItem()
	if item == nil {
		return a.skip(crm.CodeValidation, op, "no item loaded")
	}
	if len(props) == 0 {
		return a.skip(crm.CodeValidation, op, "no properties to send")
	}

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	resp, err := a.client.Patch(ctx, a.objectPath(item.ID), propertiesRequest{Properties: props})
	if err != nil {
		return a.remoteError(op, err)
	}

	var obj objectResponse
	if err := resp.JSON(&obj); err != nil {
		return a.remoteError(op, fmt.Errorf("decode object: %w", err))
	}
	if obj.ID == "" {
		obj.ID = item.ID
	}
	a.setItem(obj)
	a.log.Info(logging.LevelMid, "remote object "+op+"d", "object_type", a.objectType, "remote_id", obj.ID)
	return nil
}

func (a *Adapter) Associate(ctx context.Context, targetType, targetID string, specs []models.AssociationSpec) error {
	item := a.FirstItem()
	if item == nil {
		return a.skip(crm.CodeAssociation, "associate", "no item loaded")
	}
	if len(specs) == 0 {
		return nil
	}
	if !a.SupportsObjectType(targetType) {
		return a.skip(crm.CodeAssociation, "associate", "target object type %q is not supported", targetType)
	}

	current, err := a.currentAssociations(ctx, item.ID, targetType)
	if err != nil {
		return err
	}

	plan := crm.Reconcile(current, targetID, specs)
	if plan.Empty() {
		a.log.Debug(logging.LevelLow, "association already satisfied", "target_type", targetType, "target_id", targetID)
		return nil
	}

	for _, id := range plan.Remove {
		if err := a.removeAssociation(ctx, item.ID, targetType, id); err != nil {
			return err
		}
	}
	if plan.Create {
		return a.createAssociation(ctx, item.ID, targetType, targetID, specs)
	}
	return nil
}

func (a *Adapter) currentAssociations(ctx context.Context, fromID, targetType string) ([]crm.AssociatedObject, error) {
	var current []crm.AssociatedObject
	after := ""

	for page := 0; page < associationMaxPages; page++ {
		query := url.Values{}
		query.Set("limit", fmt.Sprint(associationPageSize))
		if after != "" {
			query.Set("after", after)
		}

		callCtx, cancel := a.callContext(ctx)
		resp, err := a.client.Get(callCtx, a.associationPath(fromID, targetType, ""), query)
		if err != nil {
			cancel()
			return nil, a.remoteError("associations", err)
		}
		var out associationsResponse
		err = resp.JSON(&out)
		cancel()
		if err != nil {
			return nil, a.remoteError("associations", fmt.Errorf("decode associations: %w", err))
		}

		for _, res := range out.Results {
			obj := crm.AssociatedObject{ID: res.ToObjectID.String()}
			for _, t := range res.AssociationTypes {
				obj.Specs = append(obj.Specs, models.AssociationSpec{Category: t.Category, TypeID: t.TypeID})
			}
			current = append(current, obj)
		}

		if out.Paging == nil || out.Paging.Next == nil || out.Paging.Next.After == "" {
			return current, nil
		}
		after = out.Paging.Next.After
	}

	a.log.Warn(logging.LevelHigh, "association page cap reached",
		"target_type", targetType, "from_id", fromID, "links", len(current))
	return current, nil
}

func (a *Adapter) removeAssociation(ctx context.Context, fromID, targetType, toID string) error {
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if _, err := a.client.Delete(ctx, a.associationPath(fromID, targetType, toID)); err != nil {
		return a.remoteError("associations", err)
	}
	a.log.Info(logging.LevelMid, "association removed", "target_type", targetType, "target_id", toID)
	return nil
}

func (a *Adapter) createAssociation(ctx context.Context, fromID, targetType, toID string, specs []models.AssociationSpec) error {
	body := make([]associationSpecRequest, 0, len(specs))
	for _, s := range specs {
		body = append(body, associationSpecRequest{AssociationCategory: s.Category, AssociationTypeID: s.TypeID})
	}

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if _, err := a.client.Put(ctx, a.associationPath(fromID, targetType, toID), body); err != nil {
		return a.remoteError("associations", err)
	}
	a.log.Info(logging.LevelMid, "association created", "target_type", targetType, "target_id", toID)
	return nil
}

func (a *Adapter) ObjectLoaded() bool { return a.loaded }

func (a *Adapter) ObjectItemLoaded() bool { return a.FirstItem() != nil }

func (a *Adapter) Total() int { return a.total }

func (a *Adapter) Results() []crm.Item { return a.results }

func (a *Adapter) FirstItem() *crm.Item {
	if len(a.results) == 0 {
		return nil
	}
	return &a.results[0]
}

func (a *Adapter) Paging() *crm.Paging { return a.paging }

func (a *Adapter) flush() {
	a.loaded = false
	a.total = 0
	a.results = nil
	a.paging = nil
}

func (a *Adapter) setItem(obj objectResponse) {
	a.loaded = true
	a.total = 1
	a.results = []crm.Item{toItem(obj)}
	a.paging = nil
}

func (a *Adapter) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.opts.CallTimeout)
}

func (a *Adapter) propertyNames() []string {
	names := make([]string, 0, len(a.properties))
	for name := range a.properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *Adapter) objectPath(suffix string) string {
	path := "/crm/v3/objects/" + objectPaths[a.objectType]
	if suffix != "" {
		path += "/" + url.PathEscape(suffix)
	}
	return path
}

func (a *Adapter) associationPath(fromID, targetType, toID string) string {
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/%s",
		objectPaths[a.objectType], url.PathEscape(fromID), objectPaths[targetType])
	if toID != "" {
		path += "/" + url.PathEscape(toID)
	}
	return path
}

func (a *Adapter) fatal(code crm.Code, op, format string, args ...any) error {
	return crm.Fatal(code, op, format, args...).In(ProviderName, a.environment)
}

func (a *Adapter) skip(code crm.Code, op, format string, args ...any) error {
	return crm.Skip(code, op, format, args...).In(ProviderName, a.environment)
}

// remoteError classifies transport failures. Timeouts and HTTP errors are
// both retryable by the caller.
func (a *Adapter) remoteError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("remote call timed out: %w", err)
	}
	a.log.Error(logging.LevelHigh, "remote call failed", "op", op, "object_type", a.objectType, "status", httpclient.StatusOf(err), "error", err)
	return crm.Retryable(crm.CodeRemoteAPI, op, err).In(ProviderName, a.environment)
}

func toItem(obj objectResponse) crm.Item {
	return crm.Item{
		ID:         obj.ID,
		Properties: obj.Properties,
		CreatedAt:  obj.CreatedAt,
		UpdatedAt:  obj.UpdatedAt,
		Archived:   obj.Archived,
	}
}
