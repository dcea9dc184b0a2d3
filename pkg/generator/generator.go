/*
 * Copyright 2025 Fleetmon Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package generator produces the wanted configuration set from the template
// registry and a fleet topology snapshot. Generation is deterministic: the
// same templates and topology always yield the same set, in the same order.
package generator

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/fleetmon/probeadm/pkg/configset"
	"github.com/fleetmon/probeadm/pkg/logger"
	"github.com/fleetmon/probeadm/pkg/models"
	"github.com/fleetmon/probeadm/pkg/registry"
)

var errMissingAccount = errors.New("generator requires an account")

// Generator combines the template registry with topology snapshots to build
// wanted config sets.
type Generator struct {
	registry *registry.Registry
	account  string
	contacts []string
	log      logger.Logger
}

// New constructs a Generator. Account is the remote monitoring account that
// will own every generated group; contacts is the alert-routing list applied
// to every group.
func New(reg *registry.Registry, account string, contacts []string, log logger.Logger) (*Generator, error) {
	if account == "" {
		return nil, errMissingAccount
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Generator{
		registry: reg,
		account:  account,
		contacts: contacts,
		log:      log.WithComponent("generator"),
	}, nil
}

// binding pairs a generated event with the service whose instances run the
// checks. targetSvc is set only for checkFrom templates, where the checks are
// run by one service against another.
type binding struct {
	event      string
	checkerSvc string
	targetSvc  string
}

// pair is one (agent, machine) assignment plus the instance whose metadata
// feeds autoEnv expansion. target is nil for global probes, which run on
// compute nodes with no instance metadata.
type pair struct {
	agent   string
	machine string
	target  *models.Instance
}

// Generate builds the wanted config set for a topology snapshot.
func (g *Generator) Generate(topo *models.TopologySnapshot) (*configset.ConfigSet, error) {
	bySvc := g.classify(topo)
	cs := configset.New()

	for _, tpl := range g.registry.Templates() {
		bindings := g.bindings(tpl)

		// One group per distinct generated event, whether or not any
		// instance currently qualifies.
		seen := make(map[string]bool, len(bindings))

		for _, b := range bindings {
			if seen[b.event] {
				continue
			}

			seen[b.event] = true

			name := registry.GroupNameForEvent(b.event)

			group, err := models.NewProbeGroup("", name, g.account, g.contacts)
			if err != nil {
				return nil, fmt.Errorf("building group for event %q: %w", b.event, err)
			}

			if err := cs.AddProbeGroup(group); err != nil {
				return nil, err
			}
		}

		for _, b := range bindings {
			if err := g.generateProbes(cs, tpl, b, bySvc); err != nil {
				return nil, err
			}
		}
	}

	g.log.Debug().
		Int("groups", cs.GroupCount()).
		Int("probes", cs.ProbeCount()).
		Msg("generated wanted config set")

	return cs, nil
}

// classify buckets local instances by service role, excluding the compute
// pseudo-service (compute nodes belong to the job-execution subsystem).
func (g *Generator) classify(topo *models.TopologySnapshot) map[string][]models.Instance {
	bySvc := make(map[string][]models.Instance)

	for uuid, inst := range topo.Instances {
		if inst.Service == g.registry.ComputeService() || !inst.Local {
			continue
		}

		// The map key is the instance's identity; the value never carries it.
		inst.UUID = uuid
		bySvc[inst.Service] = append(bySvc[inst.Service], inst)
	}

	for svc := range bySvc {
		insts := bySvc[svc]
		sort.Slice(insts, func(i, j int) bool { return insts[i].UUID < insts[j].UUID })
	}

	return bySvc
}

// bindings expands a template into its (event, checker service) pairs.
func (g *Generator) bindings(tpl *models.ProbeTemplate) []binding {
	switch tpl.Scope.Service {
	case models.ScopeEach:
		aliases := g.registry.AliasesFor(tpl.Event)
		out := make([]binding, 0, len(aliases))

		for _, a := range aliases {
			out = append(out, binding{event: a.Event, checkerSvc: a.Service})
		}

		return out
	case models.ScopeAll:
		services := g.registry.Services()
		out := make([]binding, 0, len(services))

		for _, svc := range services {
			out = append(out, binding{event: tpl.Event, checkerSvc: svc})
		}

		return out
	default:
		if tpl.Scope.CheckFrom != "" {
			return []binding{{
				event:      tpl.Event,
				checkerSvc: tpl.Scope.CheckFrom,
				targetSvc:  tpl.Scope.Service,
			}}
		}

		return []binding{{event: tpl.Event, checkerSvc: tpl.Scope.Service}}
	}
}

func (g *Generator) generateProbes(
	cs *configset.ConfigSet,
	tpl *models.ProbeTemplate,
	b binding,
	bySvc map[string][]models.Instance,
) error {
	checkers := bySvc[b.checkerSvc]
	if len(checkers) == 0 {
		return nil
	}

	pairs := g.pairs(tpl, b, checkers, bySvc)
	groupName := registry.GroupNameForEvent(b.event)

	for _, p := range pairs {
		for i := range tpl.Checks {
			check := tpl.Checks[i]
			config := models.DeepCopyConfig(check.Config)

			if check.Type == models.CheckTypeCmd {
				expandAutoEnv(config, p.target)
			}

			probe, err := models.NewProbe(models.Probe{
				Name:        b.event + strconv.Itoa(i),
				Type:        check.Type,
				Config:      config,
				Agent:       p.agent,
				Machine:     p.machine,
				Group:       groupName,
				GroupEvents: true,
			})
			if err != nil {
				return fmt.Errorf("template %q from %q: %w", tpl.Event, tpl.Origin, err)
			}

			if err := cs.AddProbe(probe); err != nil {
				return err
			}
		}
	}

	return nil
}

// pairs computes the (agent, machine) assignments for a binding's checkers.
func (g *Generator) pairs(
	tpl *models.ProbeTemplate,
	b binding,
	checkers []models.Instance,
	bySvc map[string][]models.Instance,
) []pair {
	if tpl.Scope.Global {
		// A probe per instance would overcount hosts sharing a compute
		// node, so global checks deduplicate down to node uuids.
		seen := make(map[string]bool, len(checkers))
		out := make([]pair, 0, len(checkers))

		for i := range checkers {
			node := checkers[i].NodeUUID
			if node == "" || seen[node] {
				continue
			}

			seen[node] = true
			out = append(out, pair{agent: node, machine: node})
		}

		sort.Slice(out, func(i, j int) bool { return out[i].agent < out[j].agent })

		return out
	}

	if b.targetSvc != "" {
		// Checkers crossed with the monitored service's instances. Amon
		// command probes run on the agent and cannot name a distinct
		// machine, so agent and machine are both the checker; the target
		// only contributes metadata for autoEnv.
		targets := bySvc[b.targetSvc]
		out := make([]pair, 0, len(checkers)*len(targets))

		for i := range checkers {
			for j := range targets {
				out = append(out, pair{
					agent:   checkers[i].UUID,
					machine: checkers[i].UUID,
					target:  &targets[j],
				})
			}
		}

		return out
	}

	out := make([]pair, 0, len(checkers))
	for i := range checkers {
		out = append(out, pair{
			agent:   checkers[i].UUID,
			machine: checkers[i].UUID,
			target:  &checkers[i],
		})
	}

	return out
}

// expandAutoEnv populates config.env from the target instance's metadata for
// every variable named in the autoEnv list, then strips the key: autoEnv is a
// local convenience never sent to the remote API. Only string metadata values
// are used.
func expandAutoEnv(config map[string]interface{}, target *models.Instance) {
	raw, ok := config[models.AutoEnvKey]
	if !ok {
		return
	}

	delete(config, models.AutoEnvKey)

	names, ok := raw.([]interface{})
	if !ok {
		return
	}

	env, _ := config["env"].(map[string]interface{})

	for _, n := range names {
		name, ok := n.(string)
		if !ok || target == nil {
			continue
		}

		value, ok := target.Metadata[name].(string)
		if !ok {
			continue
		}

		if env == nil {
			env = make(map[string]interface{})
		}

		env[name] = value
	}

	if env != nil {
		config["env"] = env
	}
}
