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
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/fleetmon/probeadm/pkg/models"
	"github.com/fleetmon/probeadm/pkg/registry"
)

// WriteSummary renders a human-readable report of the plan: staged counts,
// per-service before/after probe totals, staged groups with their knowledge
// article titles, and warnings. The format is presentational, not a stability
// contract.
func WriteSummary(w io.Writer, plan *Plan, reg *registry.Registry) error {
	if !plan.NeedsChanges() {
		_, err := fmt.Fprintf(w, "Nothing to do: %d probe groups and %d probes in sync (%d ignored).\n",
			plan.GroupsMatched, plan.ProbesMatched, plan.GroupsIgnored)
		return err
	}

	_, err := fmt.Fprintf(w,
		"Probe groups: %d to add, %d to remove, %d matched, %d ignored.\n"+
			"Probes: %d to add, %d to remove, %d matched. %d agents affected.\n",
		len(plan.GroupsAdd), len(plan.GroupsRemove), plan.GroupsMatched, plan.GroupsIgnored,
		len(plan.ProbesAdd), len(plan.ProbesRemove), plan.ProbesMatched, len(plan.AffectedAgents()))
	if err != nil {
		return err
	}

	writeServiceTotals(w, plan, reg)
	writeStagedGroups(w, plan, reg)

	if len(plan.Warnings) > 0 {
		if _, err := fmt.Fprintf(w, "\nWarnings:\n"); err != nil {
			return err
		}

		for _, warning := range plan.Warnings {
			if _, err := fmt.Fprintf(w, "  - %s\n", warning); err != nil {
				return err
			}
		}
	}

	return nil
}

func writeServiceTotals(w io.Writer, plan *Plan, reg *registry.Registry) {
	before := make(map[string]int)
	adds := make(map[string]int)
	removes := make(map[string]int)

	plan.Deployed.EachProbeGroup(func(g *models.ProbeGroup) {
		label := serviceLabel(reg, g.Name)

		plan.Deployed.EachProbeGroupProbe(g.Name, func(*models.Probe) {
			before[label]++
		})
	})

	for _, p := range plan.ProbesAdd {
		adds[serviceLabel(reg, p.Group)]++
	}

	for _, p := range plan.ProbesRemove {
		name, ok := plan.Deployed.GroupNameForUUID(p.Group)
		if !ok {
			name = p.Group
		}

		removes[serviceLabel(reg, name)]++
	}

	labels := make(map[string]struct{})
	for label := range before {
		labels[label] = struct{}{}
	}

	for label := range adds {
		labels[label] = struct{}{}
	}

	for label := range removes {
		labels[label] = struct{}{}
	}

	sorted := make([]string, 0, len(labels))
	for label := range labels {
		sorted = append(sorted, label)
	}

	sort.Strings(sorted)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"SERVICE", "PROBES BEFORE", "PROBES AFTER", "ADD", "REMOVE"})

	for _, label := range sorted {
		after := before[label] + adds[label] - removes[label]
		t.AppendRow(table.Row{label, before[label], after, adds[label], removes[label]})
	}

	t.Render()
}

func writeStagedGroups(w io.Writer, plan *Plan, reg *registry.Registry) {
	if len(plan.GroupsAdd) == 0 && len(plan.GroupsRemove) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ACTION", "GROUP", "SEVERITY", "TITLE"})

	for _, g := range plan.GroupsAdd {
		severity, title := kaFields(reg, g.Name)
		t.AppendRow(table.Row{"add", g.Name, severity, title})
	}

	for _, g := range plan.GroupsRemove {
		severity, title := kaFields(reg, g.Name)
		t.AppendRow(table.Row{"remove", g.Name, severity, title})
	}

	t.Render()
}

func kaFields(reg *registry.Registry, name string) (severity, title string) {
	ka, ok := reg.EventKA(name)
	if !ok {
		return "-", "-"
	}

	return ka.Severity, ka.Title
}

// serviceLabel attributes a group name to a service for the totals table.
func serviceLabel(reg *registry.Registry, name string) string {
	parsed := reg.ParseGroupName(name)

	switch parsed.Kind {
	case registry.NameManaged:
		if svc, ok := reg.ServiceForEvent(parsed.Event); ok {
			return svc
		}

		if reg.ResolveEventName(parsed.Event) != "" {
			return "(all services)"
		}

		return "(unknown)"
	case registry.NameLegacy:
		return "(legacy)"
	case registry.NameUnknownVersion:
		return "(unknown)"
	case registry.NameOther:
		return "(operator)"
	default:
		return "(unknown)"
	}
}
