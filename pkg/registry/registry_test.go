package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmon/probeadm/pkg/models"
)

func cmdCheck(cmd string) []models.CheckDef {
	return []models.CheckDef{{Type: "cmd", Config: map[string]interface{}{"cmd": cmd}}}
}

func TestAddTemplateEachExpansion(t *testing.T) {
	r := New(Options{Services: []string{"moray", "postgres", "compute"}})

	err := r.AddTemplate(&models.ProbeTemplate{
		Origin: "smoke.json",
		Event:  "upset.storefleet.$service.log_error",
		Scope:  models.TemplateScope{Service: models.ScopeEach},
		Checks: cmdCheck("grep ERROR"),
	})
	require.NoError(t, err)

	// Aliases resolve to the canonical event; compute is excluded.
	assert.Equal(t, "upset.storefleet.$service.log_error",
		r.ResolveEventName("upset.storefleet.moray.log_error"))
	assert.Equal(t, "upset.storefleet.$service.log_error",
		r.ResolveEventName("upset.storefleet.postgres.log_error"))
	assert.Empty(t, r.ResolveEventName("upset.storefleet.compute.log_error"))

	aliases := r.AliasesFor("upset.storefleet.$service.log_error")
	require.Len(t, aliases, 2)
	assert.Equal(t, "moray", aliases[0].Service)
	assert.Equal(t, "postgres", aliases[1].Service)

	svc, ok := r.ServiceForEvent("upset.storefleet.moray.log_error")
	require.True(t, ok)
	assert.Equal(t, "moray", svc)
}

func TestAddTemplateEachRequiresToken(t *testing.T) {
	r := New(Options{})

	err := r.AddTemplate(&models.ProbeTemplate{
		Origin: "broken.json",
		Event:  "upset.storefleet.static.event",
		Scope:  models.TemplateScope{Service: models.ScopeEach},
		Checks: cmdCheck("true"),
	})
	require.ErrorIs(t, err, ErrInvalidTemplate)
	assert.Contains(t, err.Error(), "broken.json")
}

func TestAddTemplateDuplicateEvent(t *testing.T) {
	r := New(Options{})

	tpl := models.ProbeTemplate{
		Origin: "a.json",
		Event:  "upset.storefleet.moray.ping",
		Scope:  models.TemplateScope{Service: "moray"},
		Checks: cmdCheck("ping"),
	}
	require.NoError(t, r.AddTemplate(&tpl))

	dup := tpl
	dup.Origin = "b.json"
	err := r.AddTemplate(&dup)
	require.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Contains(t, err.Error(), "b.json")
}

func TestAddTemplateValidation(t *testing.T) {
	r := New(Options{})

	tests := []struct {
		name    string
		tpl     models.ProbeTemplate
		wantErr error
	}{
		{
			name:    "empty event",
			tpl:     models.ProbeTemplate{Scope: models.TemplateScope{Service: "moray"}, Checks: cmdCheck("x")},
			wantErr: ErrInvalidTemplate,
		},
		{
			name:    "no checks",
			tpl:     models.ProbeTemplate{Event: "e1", Scope: models.TemplateScope{Service: "moray"}},
			wantErr: ErrInvalidTemplate,
		},
		{
			name:    "no scope service",
			tpl:     models.ProbeTemplate{Event: "e2", Checks: cmdCheck("x")},
			wantErr: ErrInvalidTemplate,
		},
		{
			name:    "unknown service",
			tpl:     models.ProbeTemplate{Event: "e3", Scope: models.TemplateScope{Service: "mystery"}, Checks: cmdCheck("x")},
			wantErr: ErrUnknownService,
		},
		{
			name: "checkFrom unknown service",
			tpl: models.ProbeTemplate{
				Event:  "e4",
				Scope:  models.TemplateScope{Service: "moray", CheckFrom: "mystery"},
				Checks: cmdCheck("x"),
			},
			wantErr: ErrUnknownService,
		},
		{
			name: "checkFrom self",
			tpl: models.ProbeTemplate{
				Event:  "e5",
				Scope:  models.TemplateScope{Service: "moray", CheckFrom: "moray"},
				Checks: cmdCheck("x"),
			},
			wantErr: ErrInvalidTemplate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.AddTemplate(&tt.tpl)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadDirAggregatesErrors(t *testing.T) {
	dir := t.TempDir()

	good := `[
  {
    "event": "upset.storefleet.postgres.db_down",
    "scope": {"service": "postgres"},
    "checks": [{"type": "cmd", "config": {"cmd": "pg_isready"}}],
    "ka": {"title": "Postgres down", "severity": "critical"}
  }
]`
	badJSON := `[{`
	badTemplate := `[
  {
    "event": "upset.storefleet.postgres.db_down",
    "scope": {"service": "postgres"},
    "checks": [{"type": "cmd", "config": {"cmd": "dup"}}]
  },
  {
    "event": "missing.scope",
    "checks": [{"type": "cmd", "config": {"cmd": "x"}}]
  }
]`

	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-good.json"), []byte(good), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20-badjson.json"), []byte(badJSON), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "30-badtpl.json"), []byte(badTemplate), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	r := New(Options{})
	err := r.LoadDir(dir)
	require.Error(t, err)

	// All problems surface in one aggregate error.
	assert.Contains(t, err.Error(), "20-badjson.json")
	assert.Contains(t, err.Error(), "30-badtpl.json")
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	// The good template still registered.
	assert.NotNil(t, r.TemplateForEvent("upset.storefleet.postgres.db_down"))
}

func TestTemplatesSorted(t *testing.T) {
	r := New(Options{})
	require.NoError(t, r.AddTemplate(&models.ProbeTemplate{
		Event: "zz.event", Scope: models.TemplateScope{Service: "moray"}, Checks: cmdCheck("a"),
	}))
	require.NoError(t, r.AddTemplate(&models.ProbeTemplate{
		Event: "aa.event", Scope: models.TemplateScope{Service: "postgres"}, Checks: cmdCheck("b"),
	}))

	tpls := r.Templates()
	require.Len(t, tpls, 2)
	assert.Equal(t, "aa.event", tpls[0].Event)
	assert.Equal(t, "zz.event", tpls[1].Event)
}
