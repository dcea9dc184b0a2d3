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

// Package diff compares a deployed config set against a wanted one and
// produces the update plan: which probe groups and probes to add and remove.
// Matching relies on the naming scheme for groups (same name, same identity)
// and on (agent, type, config, machine) equality for probes, so no persisted
// identifiers are needed and re-running after a partial apply converges.
package diff

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/fleetmon/probeadm/pkg/configset"
	"github.com/fleetmon/probeadm/pkg/logger"
	"github.com/fleetmon/probeadm/pkg/models"
	"github.com/fleetmon/probeadm/pkg/registry"
)

// ErrOrphanedWanted indicates the generator produced a probe without a group,
// which it must never do. A defect, not a runtime condition.
var ErrOrphanedWanted = errors.New("wanted config set contains orphan probes")

// Params are the inputs to BuildPlan.
type Params struct {
	Wanted   *configset.ConfigSet
	Deployed *configset.ConfigSet
	Registry *registry.Registry
	// Unconfigure switches group removability to the widened teardown
	// policy: every managed and legacy group becomes removable even though
	// nothing is wanted. Operator-created groups stay preserved.
	Unconfigure bool
	Logger      logger.Logger
}

// BuildPlan diffs deployed against wanted and returns the update plan.
func BuildPlan(params Params) (*Plan, error) {
	if params.Wanted.OrphanCount() > 0 {
		return nil, fmt.Errorf("%w: %d orphans", ErrOrphanedWanted, params.Wanted.OrphanCount())
	}

	log := params.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	plan := newPlan(params.Deployed, params.Wanted)

	params.Wanted.EachProbeGroup(func(wanted *models.ProbeGroup) {
		diffWantedGroup(plan, params.Deployed, wanted)
	})

	params.Deployed.EachProbeGroup(func(deployed *models.ProbeGroup) {
		if params.Wanted.HasProbeGroup(deployed.Name) {
			return
		}

		removable := params.Registry.IsRemovable(deployed.Name)
		if params.Unconfigure {
			removable = params.Registry.RemovableOnUnconfigure(deployed.Name)
		}

		if !removable {
			plan.GroupsIgnored++
			return
		}

		stageGroupRemove(plan, params.Deployed, deployed)
	})

	log.Debug().
		Int("groups_add", len(plan.GroupsAdd)).
		Int("groups_remove", len(plan.GroupsRemove)).
		Int("probes_add", len(plan.ProbesAdd)).
		Int("probes_remove", len(plan.ProbesRemove)).
		Int("groups_matched", plan.GroupsMatched).
		Int("probes_matched", plan.ProbesMatched).
		Int("groups_ignored", plan.GroupsIgnored).
		Msg("built update plan")

	return plan, nil
}

// diffWantedGroup matches one wanted group (and its probes) against the
// deployed state.
func diffWantedGroup(plan *Plan, deployed *configset.ConfigSet, wanted *models.ProbeGroup) {
	existing := deployed.ProbeGroupForName(wanted.Name)

	groupUUID := wanted.UUID
	if existing != nil {
		groupUUID = existing.UUID
		plan.GroupsMatched++

		// Immutable fields should never drift absent manual tampering;
		// record the anomaly but keep going.
		if existing.User != wanted.User {
			plan.warnf("group %q: deployed user %q differs from wanted %q",
				wanted.Name, existing.User, wanted.User)
		}

		if !stringsEqual(existing.Contacts, wanted.Contacts) {
			plan.warnf("group %q: deployed contacts %v differ from wanted %v",
				wanted.Name, existing.Contacts, wanted.Contacts)
		}
	} else {
		plan.GroupsAdd = append(plan.GroupsAdd, wanted)
	}

	// Deployed probes of this group, indexed by agent. Matched probes are
	// consumed; whatever is left afterwards is stale.
	byAgent := make(map[string][]*models.Probe)

	if existing != nil {
		deployed.EachProbeGroupProbe(existing.Name, func(p *models.Probe) {
			byAgent[p.Agent] = append(byAgent[p.Agent], p)
		})
	}

	plan.Wanted.EachProbeGroupProbe(wanted.Name, func(w *models.Probe) {
		if consumeMatch(byAgent, w, plan) {
			plan.ProbesMatched++
			return
		}

		plan.ProbesAdd = append(plan.ProbesAdd, w)
		plan.delta(groupUUID, wanted.Name).addProbe(w.Agent)
	})

	for _, stale := range sortedRemaining(byAgent) {
		plan.ProbesRemove = append(plan.ProbesRemove, stale)
		plan.delta(groupUUID, wanted.Name).removeProbe(stale.Agent)
	}
}

// consumeMatch finds a deployed probe on the same agent with identical type,
// config, and machine, removes it from the index, and reports whether one was
// found. When duplicates exist, the first in iteration order wins; duplicates
// are assumed rare and accidental, and the tie-break is deliberately not
// content-based.
func consumeMatch(byAgent map[string][]*models.Probe, w *models.Probe, plan *Plan) bool {
	candidates := byAgent[w.Agent]

	for i, d := range candidates {
		if d.Type != w.Type || d.Machine != w.Machine || !reflect.DeepEqual(d.Config, w.Config) {
			continue
		}

		if d.GroupEvents != w.GroupEvents {
			plan.warnf("probe %q on agent %s: deployed groupEvents %v differs from wanted %v",
				w.Name, w.Agent, d.GroupEvents, w.GroupEvents)
		}

		if !stringsEqual(d.Contacts, w.Contacts) {
			plan.warnf("probe %q on agent %s: deployed contacts %v differ from wanted %v",
				w.Name, w.Agent, d.Contacts, w.Contacts)
		}

		byAgent[w.Agent] = append(candidates[:i], candidates[i+1:]...)

		return true
	}

	return false
}

// stageGroupRemove stages a deployed group and all of its probes for removal.
func stageGroupRemove(plan *Plan, deployed *configset.ConfigSet, group *models.ProbeGroup) {
	plan.GroupsRemove = append(plan.GroupsRemove, group)

	deployed.EachProbeGroupProbe(group.Name, func(p *models.Probe) {
		plan.ProbesRemove = append(plan.ProbesRemove, p)
		plan.delta(group.UUID, group.Name).removeProbe(p.Agent)
	})
}

func sortedRemaining(byAgent map[string][]*models.Probe) []*models.Probe {
	agents := make([]string, 0, len(byAgent))

	for agent, probes := range byAgent {
		if len(probes) > 0 {
			agents = append(agents, agent)
		}
	}

	sort.Strings(agents)

	var out []*models.Probe
	for _, agent := range agents {
		out = append(out, byAgent[agent]...)
	}

	return out
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
