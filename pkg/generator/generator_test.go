package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmon/probeadm/pkg/configset"
	"github.com/fleetmon/probeadm/pkg/logger"
	"github.com/fleetmon/probeadm/pkg/models"
	"github.com/fleetmon/probeadm/pkg/registry"
)

const (
	morayZoneA    = "0a0a0a0a-0000-4000-8000-000000000001"
	morayZoneB    = "0b0b0b0b-0000-4000-8000-000000000002"
	postgresZoneA = "0c0c0c0c-0000-4000-8000-000000000003"
	webapiZoneA   = "0d0d0d0d-0000-4000-8000-000000000004"
	remoteZone    = "0e0e0e0e-0000-4000-8000-000000000005"
	computeZone   = "0f0f0f0f-0000-4000-8000-000000000006"
	nodeOne       = "1a1a1a1a-0000-4000-8000-00000000000a"
	nodeTwo       = "1b1b1b1b-0000-4000-8000-00000000000b"
)

func testTopology() *models.TopologySnapshot {
	return &models.TopologySnapshot{
		Instances: map[string]models.Instance{
			morayZoneA: {
				UUID: morayZoneA, Service: "moray", NodeUUID: nodeOne, Local: true,
				Metadata: map[string]interface{}{"MORAY_URL": "tcp://moray-a:2020", "PORT": float64(2020)},
			},
			morayZoneB: {
				UUID: morayZoneB, Service: "moray", NodeUUID: nodeOne, Local: true,
			},
			postgresZoneA: {
				UUID: postgresZoneA, Service: "postgres", NodeUUID: nodeTwo, Local: true,
				Metadata: map[string]interface{}{"PG_URL": "postgres://pg-a"},
			},
			webapiZoneA: {
				UUID: webapiZoneA, Service: "webapi", NodeUUID: nodeTwo, Local: true,
			},
			remoteZone: {
				UUID: remoteZone, Service: "moray", NodeUUID: nodeTwo, Local: false,
			},
			computeZone: {
				UUID: computeZone, Service: "compute", NodeUUID: nodeOne, Local: true,
			},
		},
		NodeUUIDs: []string{nodeOne, nodeTwo},
	}
}

func testRegistry(t *testing.T, tpls ...*models.ProbeTemplate) *registry.Registry {
	t.Helper()

	r := registry.New(registry.Options{Services: []string{"moray", "postgres", "webapi"}})
	for _, tpl := range tpls {
		require.NoError(t, r.AddTemplate(tpl))
	}

	return r
}

func generate(t *testing.T, r *registry.Registry, topo *models.TopologySnapshot) *configset.ConfigSet {
	t.Helper()

	gen, err := New(r, "admin", []string{"email"}, logger.NewTestLogger())
	require.NoError(t, err)

	cs, err := gen.Generate(topo)
	require.NoError(t, err)
	require.Zero(t, cs.OrphanCount(), "wanted sets must have no orphans")

	return cs
}

func collectProbes(cs *configset.ConfigSet, group string) []*models.Probe {
	var out []*models.Probe

	cs.EachProbeGroupProbe(group, func(p *models.Probe) {
		out = append(out, p)
	})

	return out
}

func TestGenerateNamedServiceScope(t *testing.T) {
	r := testRegistry(t, &models.ProbeTemplate{
		Origin: "test",
		Event:  "upset.storefleet.postgres.db_down",
		Scope:  models.TemplateScope{Service: "postgres"},
		Checks: []models.CheckDef{
			{Type: "cmd", Config: map[string]interface{}{"cmd": "pg_isready"}},
			{Type: "log-scan", Config: map[string]interface{}{"match": "FATAL"}},
		},
	})

	cs := generate(t, r, testTopology())

	require.Equal(t, 1, cs.GroupCount())

	group := cs.ProbeGroupForName("upset.storefleet.postgres.db_down;v=1")
	require.NotNil(t, group)
	assert.Equal(t, "admin", group.User)
	assert.Equal(t, []string{"email"}, group.Contacts)
	assert.Equal(t, group.Name, group.UUID, "wanted groups use the name as placeholder uuid")

	probes := collectProbes(cs, group.Name)
	require.Len(t, probes, 2, "one probe per check for the single postgres instance")

	assert.Equal(t, "upset.storefleet.postgres.db_down0", probes[0].Name)
	assert.Equal(t, "upset.storefleet.postgres.db_down1", probes[1].Name)
	assert.Equal(t, postgresZoneA, probes[0].Agent)
	assert.Equal(t, postgresZoneA, probes[0].Machine)
	assert.True(t, probes[0].GroupEvents)
}

func TestGenerateEachScope(t *testing.T) {
	r := testRegistry(t, &models.ProbeTemplate{
		Origin: "test",
		Event:  "upset.storefleet.$service.log_error",
		Scope:  models.TemplateScope{Service: models.ScopeEach},
		Checks: []models.CheckDef{{Type: "log-scan", Config: map[string]interface{}{"match": "ERROR"}}},
	})

	cs := generate(t, r, testTopology())

	// One group per known service, instances or not.
	assert.Equal(t, 3, cs.GroupCount())

	// moray has two local instances, the remote one is excluded.
	probes := collectProbes(cs, "upset.storefleet.moray.log_error;v=1")
	require.Len(t, probes, 2)
	assert.Equal(t, morayZoneA, probes[0].Agent)
	assert.Equal(t, morayZoneB, probes[1].Agent)

	assert.Len(t, collectProbes(cs, "upset.storefleet.postgres.log_error;v=1"), 1)
	assert.Len(t, collectProbes(cs, "upset.storefleet.webapi.log_error;v=1"), 1)
}

func TestGenerateAllScope(t *testing.T) {
	r := testRegistry(t, &models.ProbeTemplate{
		Origin: "test",
		Event:  "upset.storefleet.zone.svcs_error",
		Scope:  models.TemplateScope{Service: models.ScopeAll},
		Checks: []models.CheckDef{{Type: "cmd", Config: map[string]interface{}{"cmd": "svcs -xv"}}},
	})

	cs := generate(t, r, testTopology())

	// A single event, so a single group, fed by every service.
	require.Equal(t, 1, cs.GroupCount())

	probes := collectProbes(cs, "upset.storefleet.zone.svcs_error;v=1")
	// moray x2, postgres x1, webapi x1; compute and remote excluded.
	assert.Len(t, probes, 4)
}

func TestGenerateGlobalDeduplicatesToNodes(t *testing.T) {
	r := testRegistry(t, &models.ProbeTemplate{
		Origin: "test",
		Event:  "upset.storefleet.moray.node_check",
		Scope:  models.TemplateScope{Service: "moray", Global: true},
		Checks: []models.CheckDef{{Type: "cmd", Config: map[string]interface{}{"cmd": "uptime"}}},
	})

	cs := generate(t, r, testTopology())

	probes := collectProbes(cs, "upset.storefleet.moray.node_check;v=1")
	// Both local moray zones share nodeOne: exactly one probe.
	require.Len(t, probes, 1)
	assert.Equal(t, nodeOne, probes[0].Agent)
	assert.Equal(t, nodeOne, probes[0].Machine)
}

func TestGenerateCheckFromCrossesServices(t *testing.T) {
	r := testRegistry(t, &models.ProbeTemplate{
		Origin: "test",
		Event:  "upset.storefleet.moray.unreachable",
		Scope:  models.TemplateScope{Service: "moray", CheckFrom: "webapi"},
		Checks: []models.CheckDef{{Type: "cmd", Config: map[string]interface{}{"cmd": "moray-ping"}}},
	})

	cs := generate(t, r, testTopology())

	probes := collectProbes(cs, "upset.storefleet.moray.unreachable;v=1")
	// One webapi checker crossed with two local moray targets.
	require.Len(t, probes, 2)

	for _, p := range probes {
		assert.Equal(t, webapiZoneA, p.Agent, "command probes run on the checker")
		assert.Equal(t, webapiZoneA, p.Machine, "command probes cannot name a distinct machine")
	}
}

func TestGenerateAutoEnv(t *testing.T) {
	r := testRegistry(t, &models.ProbeTemplate{
		Origin: "test",
		Event:  "upset.storefleet.moray.ping",
		Scope:  models.TemplateScope{Service: "moray"},
		Checks: []models.CheckDef{{
			Type: "cmd",
			Config: map[string]interface{}{
				"cmd":             "moray-ping",
				models.AutoEnvKey: []interface{}{"MORAY_URL", "PORT", "ABSENT"},
			},
		}},
	})

	cs := generate(t, r, testTopology())
	probes := collectProbes(cs, "upset.storefleet.moray.ping;v=1")
	require.Len(t, probes, 2)

	// Zone A carries MORAY_URL (string) and PORT (number, ignored).
	cfgA := probes[0].Config
	require.NotContains(t, cfgA, models.AutoEnvKey)

	env, ok := cfgA["env"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "tcp://moray-a:2020", env["MORAY_URL"])
	assert.NotContains(t, env, "PORT")
	assert.NotContains(t, env, "ABSENT")

	// Zone B has no metadata: no env key at all, autoEnv still stripped.
	cfgB := probes[1].Config
	assert.NotContains(t, cfgB, models.AutoEnvKey)
	assert.NotContains(t, cfgB, "env")
}

func TestGenerateDeterministic(t *testing.T) {
	tpls := []*models.ProbeTemplate{
		{
			Origin: "test",
			Event:  "upset.storefleet.$service.log_error",
			Scope:  models.TemplateScope{Service: models.ScopeEach},
			Checks: []models.CheckDef{{Type: "log-scan", Config: map[string]interface{}{"match": "ERROR"}}},
		},
		{
			Origin: "test",
			Event:  "upset.storefleet.postgres.db_down",
			Scope:  models.TemplateScope{Service: "postgres"},
			Checks: []models.CheckDef{{Type: "cmd", Config: map[string]interface{}{"cmd": "pg_isready"}}},
		},
	}

	first := generate(t, testRegistry(t, tpls...), testTopology())
	second := generate(t, testRegistry(t, tpls...), testTopology())

	require.Equal(t, first.GroupNames(), second.GroupNames())

	for _, name := range first.GroupNames() {
		assert.Equal(t, first.ProbeGroupForName(name), second.ProbeGroupForName(name))
		assert.Equal(t, collectProbes(first, name), collectProbes(second, name), "group %s", name)
	}
}

func TestGenerateRequiresAccount(t *testing.T) {
	_, err := New(testRegistry(t), "", nil, logger.NewTestLogger())
	require.Error(t, err)
}

func TestGenerateIdentityFromSnapshotKeys(t *testing.T) {
	r := testRegistry(t, &models.ProbeTemplate{
		Origin: "test",
		Event:  "upset.storefleet.postgres.db_down",
		Scope:  models.TemplateScope{Service: "postgres"},
		Checks: []models.CheckDef{
			{Type: "cmd", Config: map[string]interface{}{"cmd": "pg_isready"}},
		},
	})

	// Instance values carry no uuid of their own, exactly as a freshly
	// decoded snapshot looks: the map key is the only identity.
	topo := &models.TopologySnapshot{
		Instances: map[string]models.Instance{
			postgresZoneA: {Service: "postgres", NodeUUID: nodeTwo, Local: true},
			webapiZoneA:   {Service: "webapi", NodeUUID: nodeTwo, Local: true},
		},
		NodeUUIDs: []string{nodeTwo},
	}

	cs := generate(t, r, topo)

	probes := collectProbes(cs, "upset.storefleet.postgres.db_down;v=1")
	require.Len(t, probes, 1)
	assert.Equal(t, postgresZoneA, probes[0].Agent)
	assert.Equal(t, postgresZoneA, probes[0].Machine)
}
