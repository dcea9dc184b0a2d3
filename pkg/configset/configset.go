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

// Package configset holds an in-memory set of probe groups and probes with
// name and uuid indices. The same representation backs both the deployed
// state (loaded from the remote API) and the wanted state (generated from
// templates and topology); sets are built fresh each reconciliation pass and
// discarded once the plan is derived.
package configset

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fleetmon/probeadm/pkg/models"
)

var (
	// ErrDuplicateGroup indicates two groups with the same name or uuid.
	// That is a data-integrity problem in the caller's input, not an
	// expected runtime condition.
	ErrDuplicateGroup = errors.New("duplicate probe group")
	// ErrGroupNotFound indicates a probe referencing a group uuid that has
	// not been added yet. Groups must be added before their probes.
	ErrGroupNotFound = errors.New("probe group not found")
)

// ConfigSet owns probe groups indexed by name and uuid, their probes, and
// probes that belong to no group (orphans). A wanted set must contain zero
// orphans.
type ConfigSet struct {
	groups     map[string]*models.ProbeGroup
	uuidToName map[string]string
	probes     map[string][]*models.Probe
	orphans    []*models.Probe
}

// New returns an empty ConfigSet.
func New() *ConfigSet {
	return &ConfigSet{
		groups:     make(map[string]*models.ProbeGroup),
		uuidToName: make(map[string]string),
		probes:     make(map[string][]*models.Probe),
	}
}

// AddProbeGroup registers a group under its name and uuid. Duplicates of
// either are rejected.
func (c *ConfigSet) AddProbeGroup(group *models.ProbeGroup) error {
	if _, ok := c.groups[group.Name]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateGroup, group.Name)
	}

	if name, ok := c.uuidToName[group.UUID]; ok {
		return fmt.Errorf("%w: uuid %q already held by %q", ErrDuplicateGroup, group.UUID, name)
	}

	c.groups[group.Name] = group
	c.uuidToName[group.UUID] = group.Name

	return nil
}

// AddProbe attaches a probe to its group's probe list, or to the orphan list
// when the probe has no group. The referenced group uuid must already be
// present: callers add groups before probes, and a violation is a defect in
// the caller's construction order.
func (c *ConfigSet) AddProbe(probe *models.Probe) error {
	if probe.Group == "" {
		c.orphans = append(c.orphans, probe)
		return nil
	}

	name, ok := c.uuidToName[probe.Group]
	if !ok {
		return fmt.Errorf("%w: probe %q references group %q", ErrGroupNotFound, probe.Name, probe.Group)
	}

	c.probes[name] = append(c.probes[name], probe)

	return nil
}

// ProbeGroupForName returns the group with the given name, or nil.
func (c *ConfigSet) ProbeGroupForName(name string) *models.ProbeGroup {
	return c.groups[name]
}

// GroupNameForUUID returns the name of the group holding the given uuid.
func (c *ConfigSet) GroupNameForUUID(uuid string) (string, bool) {
	name, ok := c.uuidToName[uuid]
	return name, ok
}

// HasProbeGroup reports whether a group with the given name exists.
func (c *ConfigSet) HasProbeGroup(name string) bool {
	_, ok := c.groups[name]
	return ok
}

// GroupNames returns all group names, sorted.
func (c *ConfigSet) GroupNames() []string {
	names := make([]string, 0, len(c.groups))
	for name := range c.groups {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// EachProbeGroup calls fn for every group, in sorted name order.
func (c *ConfigSet) EachProbeGroup(fn func(*models.ProbeGroup)) {
	for _, name := range c.GroupNames() {
		fn(c.groups[name])
	}
}

// EachProbeGroupProbe calls fn for every probe of the named group, in
// insertion order.
func (c *ConfigSet) EachProbeGroupProbe(name string, fn func(*models.Probe)) {
	for _, probe := range c.probes[name] {
		fn(probe)
	}
}

// EachOrphanProbe calls fn for every probe that belongs to no group.
func (c *ConfigSet) EachOrphanProbe(fn func(*models.Probe)) {
	for _, probe := range c.orphans {
		fn(probe)
	}
}

// OrphanCount returns the number of probes without a group.
func (c *ConfigSet) OrphanCount() int {
	return len(c.orphans)
}

// GroupCount returns the number of groups.
func (c *ConfigSet) GroupCount() int {
	return len(c.groups)
}

// ProbeCount returns the number of probes attached to groups.
func (c *ConfigSet) ProbeCount() int {
	total := 0
	for _, probes := range c.probes {
		total += len(probes)
	}

	return total
}
