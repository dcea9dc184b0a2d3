package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmon/probeadm/pkg/amon"
	"github.com/fleetmon/probeadm/pkg/models"
	"github.com/fleetmon/probeadm/pkg/natsutil"
	"github.com/fleetmon/probeadm/pkg/registry"
)

const (
	pgZone   = "0c0c0c0c-0000-4000-8000-000000000003"
	apiZone  = "0d0d0d0d-0000-4000-8000-000000000004"
	nodeUUID = "1a1a1a1a-0000-4000-8000-00000000000a"
)

// fleetClient is an in-memory monitoring API: creations land in maps, lists
// read them back, so apply-then-verify exercises real convergence.
type fleetClient struct {
	mu     sync.Mutex
	groups map[string]*models.ProbeGroup
	probes map[string]*models.Probe
	nextID int
}

func newFleetClient() *fleetClient {
	return &fleetClient{
		groups: make(map[string]*models.ProbeGroup),
		probes: make(map[string]*models.Probe),
	}
}

func (f *fleetClient) ListProbeGroups(context.Context, string) ([]*models.ProbeGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*models.ProbeGroup, 0, len(f.groups))
	for _, g := range f.groups {
		copied := *g
		out = append(out, &copied)
	}

	return out, nil
}

func (f *fleetClient) ListAgentProbes(_ context.Context, agent string) ([]*models.Probe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Probe

	for _, p := range f.probes {
		if p.Agent == agent {
			copied := *p
			out = append(out, &copied)
		}
	}

	return out, nil
}

func (f *fleetClient) CreateProbeGroup(_ context.Context, _ string, group *models.ProbeGroup) (*models.ProbeGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	created := *group
	created.UUID = fmt.Sprintf("g-%d", f.nextID)
	f.groups[created.UUID] = &created

	out := created

	return &out, nil
}

func (f *fleetClient) DeleteProbeGroup(_ context.Context, _, groupUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, groupUUID)

	return nil
}

func (f *fleetClient) CreateProbe(_ context.Context, _ string, probe *models.Probe) (*models.Probe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	created := *probe
	created.UUID = fmt.Sprintf("p-%d", f.nextID)
	f.probes[created.UUID] = &created

	out := created

	return &out, nil
}

func (f *fleetClient) DeleteProbe(_ context.Context, _, probeUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.probes, probeUUID)

	return nil
}

func (f *fleetClient) counts() (groups, probes int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.groups), len(f.probes)
}

// seedGroup plants pre-existing remote state, bypassing the create path.
func (f *fleetClient) seedGroup(uuid, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[uuid] = &models.ProbeGroup{UUID: uuid, Name: name, User: "admin"}
}

func (f *fleetClient) seedProbe(uuid, name, agent, groupUUID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes[uuid] = &models.Probe{
		UUID: uuid, Name: name, Type: "cmd", Agent: agent, Machine: agent, Group: groupUUID,
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	eventType string
	data      *models.ReconcileEventData
}

func (r *recordingSink) PublishReconcile(_ context.Context, eventType string, data *models.ReconcileEventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{eventType, data})

	return nil
}

type staticTopology struct {
	snapshot *models.TopologySnapshot
}

func (s *staticTopology) Topology(context.Context) (*models.TopologySnapshot, error) {
	return s.snapshot, nil
}

func testSnapshot() *models.TopologySnapshot {
	return &models.TopologySnapshot{
		Instances: map[string]models.Instance{
			pgZone:  {UUID: pgZone, Service: "postgres", NodeUUID: nodeUUID, Local: true},
			apiZone: {UUID: apiZone, Service: "webapi", NodeUUID: nodeUUID, Local: true},
		},
		NodeUUIDs: []string{nodeUUID},
	}
}

func testService(t *testing.T, client *fleetClient, sink EventSink) *Service {
	t.Helper()

	reg := registry.New(registry.Options{Services: []string{"postgres", "webapi"}})
	require.NoError(t, reg.AddTemplate(&models.ProbeTemplate{
		Origin: "test",
		Event:  "upset.storefleet.postgres.db_down",
		Scope:  models.TemplateScope{Service: "postgres"},
		Checks: []models.CheckDef{
			{Type: "cmd", Config: map[string]interface{}{"cmd": "pg_isready"}},
			{Type: "log-scan", Config: map[string]interface{}{"match": "FATAL"}},
		},
	}))

	svc, err := New(Params{
		Registry: reg,
		Client:   client,
		Topology: &staticTopology{snapshot: testSnapshot()},
		Events:   sink,
		Account:  "admin",
		Contacts: []string{"email"},
	})
	require.NoError(t, err)

	return svc
}

func TestApplyConvergesEmptyFleet(t *testing.T) {
	client := newFleetClient()
	sink := &recordingSink{}
	svc := testService(t, client, sink)

	outcome, err := svc.Apply(context.Background())
	require.NoError(t, err)

	require.NotNil(t, outcome.Applied)
	assert.Equal(t, 1, outcome.Applied.GroupsAdded)
	assert.Equal(t, 2, outcome.Applied.ProbesAdded)
	assert.True(t, outcome.Converged)

	groups, probes := client.counts()
	assert.Equal(t, 1, groups)
	assert.Equal(t, 2, probes)

	require.Len(t, sink.events, 1)
	assert.Equal(t, natsutil.EventTypeApplied, sink.events[0].eventType)
	assert.True(t, sink.events[0].data.Converged)
	assert.Equal(t, []string{pgZone}, sink.events[0].data.AffectedAgents)
}

func TestApplyIsIdempotent(t *testing.T) {
	client := newFleetClient()
	svc := testService(t, client, nil)

	_, err := svc.Apply(context.Background())
	require.NoError(t, err)

	groupsBefore, probesBefore := client.counts()

	outcome, err := svc.Apply(context.Background())
	require.NoError(t, err)

	assert.True(t, outcome.Converged)
	assert.Nil(t, outcome.Applied, "a converged fleet stages nothing")

	groupsAfter, probesAfter := client.counts()
	assert.Equal(t, groupsBefore, groupsAfter)
	assert.Equal(t, probesBefore, probesAfter)
}

func TestUnconfigurePreservesOperatorGroups(t *testing.T) {
	client := newFleetClient()
	svc := testService(t, client, nil)

	_, err := svc.Apply(context.Background())
	require.NoError(t, err)

	client.seedGroup("g-op", "my-own-checks")
	client.seedProbe("p-op", "my-check0", pgZone, "g-op")

	outcome, err := svc.Unconfigure(context.Background())
	require.NoError(t, err)
	assert.True(t, outcome.Converged)

	groups, probes := client.counts()
	assert.Equal(t, 1, groups, "operator group survives teardown")
	assert.Equal(t, 1, probes)
	assert.Equal(t, 1, outcome.Plan.GroupsIgnored)
}

func TestVerifyPublishesDriftEvent(t *testing.T) {
	client := newFleetClient()
	sink := &recordingSink{}
	svc := testService(t, client, sink)

	plan, err := svc.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, plan.NeedsChanges())

	require.Len(t, sink.events, 1)
	assert.Equal(t, natsutil.EventTypeDrift, sink.events[0].eventType)
	assert.False(t, sink.events[0].data.Converged)
	assert.Equal(t, 1, sink.events[0].data.GroupsAdded)
	assert.Equal(t, 2, sink.events[0].data.ProbesAdded)
}

func TestVerifyQuietWhenConverged(t *testing.T) {
	client := newFleetClient()
	svc := testService(t, client, nil)

	_, err := svc.Apply(context.Background())
	require.NoError(t, err)

	sink := &recordingSink{}
	verified := testService(t, client, sink)

	plan, err := verified.Verify(context.Background())
	require.NoError(t, err)
	assert.False(t, plan.NeedsChanges())
	assert.Empty(t, sink.events)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Account:      "admin",
			Contacts:     []string{"email"},
			Amon:         amon.Config{Endpoint: "https://amon.example.com"},
			TemplateDir:  "/etc/probeadm/templates",
			TopologyPath: "/var/run/topology.json",
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"missing account", func(c *Config) { c.Account = "" }, ErrMissingAccount},
		{"missing contacts", func(c *Config) { c.Contacts = nil }, ErrMissingContacts},
		{"missing endpoint", func(c *Config) { c.Amon.Endpoint = "" }, ErrMissingEndpoint},
		{"missing template dir", func(c *Config) { c.TemplateDir = "" }, ErrMissingTemplateDir},
		{"missing topology", func(c *Config) { c.TopologyPath = "" }, ErrMissingTopologyPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}
