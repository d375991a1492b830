package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prudhvinik1/crmsync/internal/crm"
	"github.com/prudhvinik1/crmsync/internal/logging"
	"github.com/prudhvinik1/crmsync/internal/models"
)

// fakeCRM is the remote side shared by every fakeProvider built from it.
type fakeCRM struct {
	mu          sync.Mutex
	nextID      int
	objects     map[string]map[string]map[string]string // env -> id -> properties
	types       map[string]string                       // id -> object type
	links       map[string][]crm.AssociatedObject       // fromID:targetType -> links
	calls       []string
	loads       []loadCall
	creates     []map[string]string
	failConnect map[string]bool
	failCreate  bool
}

type loadCall struct {
	Environment string
	RemoteID    string
	Filters     map[string]any
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		nextID:      500,
		objects:     make(map[string]map[string]map[string]string),
		types:       make(map[string]string),
		links:       make(map[string][]crm.AssociatedObject),
		failConnect: make(map[string]bool),
	}
}

func (f *fakeCRM) factory() crm.Factory {
	return func() crm.Provider { return &fakeProvider{crm: f} }
}

func (f *fakeCRM) record(call string) {
	f.calls = append(f.calls, call)
}

// count returns how many recorded calls start with prefix.
func (f *fakeCRM) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// seed stores a remote object directly.
func (f *fakeCRM) seed(env, objectType string, props map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(env, objectType, props)
}

func (f *fakeCRM) insert(env, objectType string, props map[string]string) string {
	f.nextID++
	id := fmt.Sprint(f.nextID)
	if f.objects[env] == nil {
		f.objects[env] = make(map[string]map[string]string)
	}
	f.objects[env][id] = props
	f.types[id] = objectType
	return id
}

// fakeProvider implements crm.Provider against a fakeCRM.
type fakeProvider struct {
	crm *fakeCRM

	env        string
	connected  bool
	record     models.Record
	objectType string
	props      map[string]string
	active     map[string]string

	loaded bool
	items  []crm.Item
}

var _ crm.Provider = (*fakeProvider)(nil)

func (p *fakeProvider) Name() string { return "hubspot" }

func (p *fakeProvider) SupportsObjectType(t string) bool {
	return t == "contact" || t == "company"
}

func (p *fakeProvider) Connect(ctx context.Context, env string, log *logging.Logger) error {
	p.crm.mu.Lock()
	defer p.crm.mu.Unlock()
	p.crm.record("connect:" + env)
	if p.crm.failConnect[env] {
		return crm.Retryable(crm.CodeProviderConnection, "connect", errors.New("connection refused")).In("hubspot", env)
	}
	p.env = env
	p.connected = true
	return nil
}

func (p *fakeProvider) Disconnect() {
	p.connected = false
	p.items = nil
}

func (p *fakeProvider) Setup(record models.Record, remoteType string, fields models.FieldMap) error {
	if !p.connected {
		return crm.Fatal(crm.CodeConfiguration, "setup", "not connected")
	}
	p.record = record
	p.objectType = remoteType
	p.props = make(map[string]string)
	for local, remote := range fields {
		if v, ok := record.Field(local); ok {
			p.props[remote] = fmt.Sprint(v)
		}
	}
	p.active = nil
	if def := record.SyncDefinition(); def != nil {
		if rules, ok := def.ActiveRules["hubspot"]; ok {
			p.active = make(map[string]string)
			for k, v := range rules {
				p.active[k] = fmt.Sprint(v)
			}
		}
	}
	return nil
}

func (p *fakeProvider) Load(ctx context.Context, remoteID string, filters map[string]any) error {
	p.crm.mu.Lock()
	defer p.crm.mu.Unlock()

	p.loaded = false
	p.items = nil
	p.crm.record("load:" + p.objectType)
	p.crm.loads = append(p.crm.loads, loadCall{Environment: p.env, RemoteID: remoteID, Filters: filters})

	objects := p.crm.objects[p.env]
	if remoteID != "" {
		props, ok := objects[remoteID]
		if !ok {
			return crm.ErrRemoteNotFound
		}
		p.set(remoteID, props)
		return nil
	}
	if len(filters) == 0 {
		return nil
	}

	p.loaded = true
	ids := make([]string, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if p.crm.types[id] != p.objectType {
			continue
		}
		match := true
		for name, want := range filters {
			if objects[id][name] != fmt.Sprint(want) {
				match = false
			}
		}
		if match {
			p.set(id, objects[id])
			return nil
		}
	}
	return nil
}

func (p *fakeProvider) set(id string, props map[string]string) {
	p.loaded = true
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	p.items = []crm.Item{{ID: id, Properties: out}}
}

func (p *fakeProvider) Create(ctx context.Context) error {
	p.crm.mu.Lock()
	defer p.crm.mu.Unlock()

	p.items = nil
	p.crm.record("create:" + p.objectType)
	if len(p.props) == 0 {
		return crm.Skip(crm.CodeValidation, "create", "no properties")
	}
	if p.crm.failCreate {
		return crm.Retryable(crm.CodeRemoteAPI, "create", errors.New("HTTP 500"))
	}
	props := merge(p.props, p.active)
	p.crm.creates = append(p.crm.creates, props)
	id := p.crm.insert(p.env, p.objectType, props)
	p.set(id, props)
	return nil
}

func (p *fakeProvider) Update(ctx context.Context) error {
	return p.patch("update", p.props)
}

func (p *fakeProvider) Restore(ctx context.Context) error {
	return p.patch("restore", merge(p.props, p.active))
}

func (p *fakeProvider) patch(op string, props map[string]string) error {
	p.crm.mu.Lock()
	defer p.crm.mu.Unlock()

	item := p.FirstItem()
	if item == nil {
		return crm.Skip(crm.CodeValidation, op, "no item loaded")
	}
	p.crm.record(op + ":" + p.objectType)
	stored := p.crm.objects[p.env][item.ID]
	for k, v := range props {
		stored[k] = v
	}
	p.set(item.ID, stored)
	return nil
}

func (p *fakeProvider) Delete(ctx context.Context, soft bool) error {
	item := p.FirstItem()
	if item == nil {
		return crm.Skip(crm.CodeValidation, "delete", "no item loaded")
	}
	rule, ok := p.record.SyncDefinition().DeleteRule("hubspot", soft)
	if !ok {
		return crm.Skip(crm.CodeConfiguration, "delete", "no rule")
	}
	if rule.Disabled {
		return nil
	}
	if soft {
		props := make(map[string]string)
		for k, v := range rule.Properties {
			props[k] = fmt.Sprint(v)
		}
		return p.patch("softdelete", props)
	}

	p.crm.mu.Lock()
	defer p.crm.mu.Unlock()
	p.crm.record("harddelete:" + p.objectType)
	delete(p.crm.objects[p.env], item.ID)
	p.items = nil
	p.loaded = false
	return nil
}

func (p *fakeProvider) Associate(ctx context.Context, targetType, targetID string, specs []models.AssociationSpec) error {
	p.crm.mu.Lock()
	defer p.crm.mu.Unlock()

	item := p.FirstItem()
	if item == nil {
		return crm.Skip(crm.CodeAssociation, "associate", "no item loaded")
	}
	if len(specs) == 0 {
		return nil
	}
	linkKey := item.ID + ":" + targetType
	plan := crm.Reconcile(p.crm.links[linkKey], targetID, specs)

	var kept []crm.AssociatedObject
	for _, l := range p.crm.links[linkKey] {
		removed := false
		for _, id := range plan.Remove {
			if l.ID == id {
				removed = true
			}
		}
		if removed {
			p.crm.record("unlink:" + l.ID)
			continue
		}
		kept = append(kept, l)
	}
	if plan.Create {
		p.crm.record("link:" + targetID)
		kept = append(kept, crm.AssociatedObject{ID: targetID, Specs: specs})
	}
	p.crm.links[linkKey] = kept
	return nil
}

func (p *fakeProvider) ObjectLoaded() bool     { return p.loaded }
func (p *fakeProvider) ObjectItemLoaded() bool { return len(p.items) > 0 }
func (p *fakeProvider) Total() int             { return len(p.items) }
func (p *fakeProvider) Results() []crm.Item    { return p.items }
func (p *fakeProvider) Paging() *crm.Paging    { return nil }

func (p *fakeProvider) FirstItem() *crm.Item {
	if len(p.items) == 0 {
		return nil
	}
	return &p.items[0]
}

func merge(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// fakeStatus records sync statuses in memory.
type fakeStatus struct {
	mu       sync.Mutex
	statuses []models.SyncStatus
}

func (s *fakeStatus) SetStatus(ctx context.Context, status *models.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, *status)
	return nil
}

func (s *fakeStatus) GetStatuses(ctx context.Context, localType, localID string) ([]models.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SyncStatus(nil), s.statuses...), nil
}
