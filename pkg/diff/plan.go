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

package diff

import (
	"fmt"
	"sort"

	"github.com/fleetmon/probeadm/pkg/configset"
	"github.com/fleetmon/probeadm/pkg/models"
)

// GroupDelta tracks the staged probe changes for one probe group.
type GroupDelta struct {
	Name   string
	Add    int
	Remove int
	Agents map[string]struct{}
}

func (d *GroupDelta) addProbe(agent string) {
	d.Add++
	d.Agents[agent] = struct{}{}
}

func (d *GroupDelta) removeProbe(agent string) {
	d.Remove++
	d.Agents[agent] = struct{}{}
}

// Plan is the result of one diff pass: the staged changes, match counters,
// warnings, and the config sets it was derived from. Built once per
// reconciliation pass, consumed exactly once by the apply engine, never
// persisted; regenerating it is always safe.
type Plan struct {
	GroupsAdd    []*models.ProbeGroup
	GroupsRemove []*models.ProbeGroup
	ProbesAdd    []*models.Probe
	ProbesRemove []*models.Probe

	GroupsMatched int
	ProbesMatched int
	GroupsIgnored int

	// PerGroup is keyed by group uuid (the deployed uuid when the group
	// exists remotely, the name placeholder otherwise).
	PerGroup map[string]*GroupDelta

	Warnings []string

	Deployed *configset.ConfigSet
	Wanted   *configset.ConfigSet
}

func newPlan(deployed, wanted *configset.ConfigSet) *Plan {
	return &Plan{
		PerGroup: make(map[string]*GroupDelta),
		Deployed: deployed,
		Wanted:   wanted,
	}
}

// NeedsChanges reports whether the plan stages any mutation.
func (p *Plan) NeedsChanges() bool {
	return len(p.GroupsAdd) > 0 || len(p.GroupsRemove) > 0 ||
		len(p.ProbesAdd) > 0 || len(p.ProbesRemove) > 0
}

// AffectedAgents returns the sorted union of agents touched by the plan.
func (p *Plan) AffectedAgents() []string {
	seen := make(map[string]struct{})

	for _, delta := range p.PerGroup {
		for agent := range delta.Agents {
			seen[agent] = struct{}{}
		}
	}

	agents := make([]string, 0, len(seen))
	for agent := range seen {
		agents = append(agents, agent)
	}

	sort.Strings(agents)

	return agents
}

func (p *Plan) delta(groupUUID, name string) *GroupDelta {
	d, ok := p.PerGroup[groupUUID]
	if !ok {
		d = &GroupDelta{Name: name, Agents: make(map[string]struct{})}
		p.PerGroup[groupUUID] = d
	}

	return d
}

func (p *Plan) warnf(format string, args ...interface{}) {
	p.Warnings = append(p.Warnings, fmt.Sprintf(format, args...))
}
