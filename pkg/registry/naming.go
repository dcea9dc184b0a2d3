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

package registry

import (
	"strings"

	"github.com/fleetmon/probeadm/pkg/models"
)

// Probe group names encode their identity: "<event-name>;v=<version>". The
// encoding is the only persistent link between deployed groups and the
// templates that generated them, so it must stay stable across releases.
const (
	versionSep       = ";v="
	groupNameVersion = "1"
)

// NameKind classifies a remote probe group name.
type NameKind int

const (
	// NameManaged names match the current versioned scheme and yield an
	// event name.
	NameManaged NameKind = iota
	// NameLegacy names are from the fixed closed set created by
	// pre-metadata releases of this tool.
	NameLegacy
	// NameOther names carry no recognizable version suffix and are presumed
	// operator-created. Never touched automatically.
	NameOther
	// NameUnknownVersion names carry a version suffix this release does not
	// understand, presumably written by a newer release. Never touched
	// automatically.
	NameUnknownVersion
)

func (k NameKind) String() string {
	switch k {
	case NameManaged:
		return "managed"
	case NameLegacy:
		return "legacy"
	case NameOther:
		return "other"
	case NameUnknownVersion:
		return "unknown-version"
	default:
		return "invalid"
	}
}

// ParsedName is the result of classifying a probe group name.
type ParsedName struct {
	Kind    NameKind
	Event   string // managed names only
	Version string // managed and unknown-version names
}

// GroupNameForEvent returns the probe group name for an event under the
// current naming scheme. Pure and deterministic: the same event always yields
// the same name, which is what lets deployed and wanted groups be matched by
// name alone.
func GroupNameForEvent(event string) string {
	return event + versionSep + groupNameVersion
}

// ParseGroupName classifies a remote probe group name against the naming
// scheme and the legacy-name set.
func (r *Registry) ParseGroupName(name string) ParsedName {
	if _, ok := r.legacy[name]; ok {
		return ParsedName{Kind: NameLegacy}
	}

	idx := strings.LastIndex(name, versionSep)
	if idx < 0 {
		return ParsedName{Kind: NameOther}
	}

	version := name[idx+len(versionSep):]
	if version != groupNameVersion {
		return ParsedName{Kind: NameUnknownVersion, Version: version}
	}

	return ParsedName{Kind: NameManaged, Event: name[:idx], Version: version}
}

// IsLegacy reports whether name is one of the fixed legacy group names.
func (r *Registry) IsLegacy(name string) bool {
	_, ok := r.legacy[name]
	return ok
}

// GroupEventName returns the event name encoded in a managed group name.
func (r *Registry) GroupEventName(name string) (string, bool) {
	parsed := r.ParseGroupName(name)
	if parsed.Kind != NameManaged {
		return "", false
	}

	return parsed.Event, true
}

// EventKA returns the knowledge article for the template behind a managed
// group name, if the event is still known.
func (r *Registry) EventKA(name string) (*models.KA, bool) {
	event, ok := r.GroupEventName(name)
	if !ok {
		return nil, false
	}

	tpl := r.TemplateForEvent(event)
	if tpl == nil {
		return nil, false
	}

	return &tpl.KA, true
}

// IsRemovable reports whether a deployed group may be deleted when it is no
// longer wanted. Legacy groups always are. Managed groups are removable only
// when their event is still known to the registry: "we used to manage this
// and no longer want it" is removable, "we have never heard of this" is not.
// Operator-created and unknown-version names are never removable.
func (r *Registry) IsRemovable(name string) bool {
	parsed := r.ParseGroupName(name)

	switch parsed.Kind {
	case NameLegacy:
		return true
	case NameManaged:
		return r.ResolveEventName(parsed.Event) != ""
	case NameOther, NameUnknownVersion:
		return false
	default:
		return false
	}
}

// RemovableOnUnconfigure is the widened removability policy used when tearing
// down all monitoring: every group the registry manages plus the legacy set.
// It deliberately still preserves operator-created groups and managed-looking
// names whose event the registry does not know, so an unconfigure run with a
// partial template set cannot delete another tool's objects. This is a
// distinct policy from IsRemovable, not a reuse of it.
func (r *Registry) RemovableOnUnconfigure(name string) bool {
	parsed := r.ParseGroupName(name)

	switch parsed.Kind {
	case NameLegacy:
		return true
	case NameManaged:
		return r.ResolveEventName(parsed.Event) != ""
	case NameOther, NameUnknownVersion:
		return false
	default:
		return false
	}
}
