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

// Package registry holds the probe template registry and the probe group
// naming scheme. The registry is built once per process from declarative
// template documents and is read-only afterwards.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fleetmon/probeadm/pkg/models"
)

// DefaultComputeService is the pseudo-service tag for compute nodes running
// the job-execution subsystem. Instances tagged with it are excluded from
// probe generation and from "each" expansion.
const DefaultComputeService = "compute"

// DefaultServices enumerates the service roles of the storage fleet.
var DefaultServices = []string{
	"authcache",
	"electric-moray",
	"jobsupervisor",
	"loadbalancer",
	"madtom",
	"moray",
	"nameservice",
	"ops",
	"postgres",
	"storage",
	"webapi",
}

// DefaultLegacyNames is the closed set of probe group names created by
// pre-metadata releases of this tool. These carry no version suffix but are
// ours to remove.
var DefaultLegacyNames = []string{
	"authcache-alert",
	"compute-alert",
	"electric-moray-alert",
	"jobsupervisor-alert",
	"loadbalancer-alert",
	"madtom-alert",
	"moray-alert",
	"nameservice-alert",
	"ops-alert",
	"postgres-alert",
	"storage-alert",
	"webapi-alert",
}

// Alias pairs an expanded per-service event name with the service it expands
// for.
type Alias struct {
	Event   string
	Service string
}

// Options configures a Registry. Zero values fall back to the package
// defaults, so tests can substitute alternate topologies and naming sets.
type Options struct {
	Services       []string
	LegacyNames    []string
	ComputeService string
}

// Registry maps event names to probe templates, plus the alias map for
// "each"-scoped templates (expanded per-service event name -> canonical
// event name).
type Registry struct {
	services       []string
	computeService string
	legacy         map[string]struct{}
	templates      map[string]*models.ProbeTemplate
	aliases        map[string]string
	aliasService   map[string]string
	aliasesByEvent map[string][]Alias
}

// New builds an empty Registry.
func New(opts Options) *Registry {
	services := opts.Services
	if services == nil {
		services = DefaultServices
	}

	legacyNames := opts.LegacyNames
	if legacyNames == nil {
		legacyNames = DefaultLegacyNames
	}

	computeService := opts.ComputeService
	if computeService == "" {
		computeService = DefaultComputeService
	}

	sorted := make([]string, 0, len(services))

	for _, svc := range services {
		if svc != computeService {
			sorted = append(sorted, svc)
		}
	}

	sort.Strings(sorted)

	legacy := make(map[string]struct{}, len(legacyNames))
	for _, name := range legacyNames {
		legacy[name] = struct{}{}
	}

	return &Registry{
		services:       sorted,
		computeService: computeService,
		legacy:         legacy,
		templates:      make(map[string]*models.ProbeTemplate),
		aliases:        make(map[string]string),
		aliasService:   make(map[string]string),
		aliasesByEvent: make(map[string][]Alias),
	}
}

// AddTemplate validates a template and registers it under its event name.
// Errors name the template's origin so operators can find the offending
// document.
func (r *Registry) AddTemplate(tpl *models.ProbeTemplate) error {
	if tpl.Event == "" {
		return fmt.Errorf("%w: template with empty event from %q", ErrInvalidTemplate, tpl.Origin)
	}

	if len(tpl.Checks) == 0 {
		return fmt.Errorf("%w: template %q from %q has no checks", ErrInvalidTemplate, tpl.Event, tpl.Origin)
	}

	if tpl.Scope.Service == "" {
		return fmt.Errorf("%w: template %q from %q has no scope service", ErrInvalidTemplate, tpl.Event, tpl.Origin)
	}

	if r.knownEvent(tpl.Event) {
		return fmt.Errorf("%w: %q from %q", ErrDuplicateEvent, tpl.Event, tpl.Origin)
	}

	switch tpl.Scope.Service {
	case models.ScopeEach:
		if err := r.expandAliases(tpl); err != nil {
			return err
		}
	case models.ScopeAll:
	default:
		if err := r.validateServiceScope(tpl); err != nil {
			return err
		}
	}

	r.templates[tpl.Event] = tpl

	return nil
}

func (r *Registry) knownEvent(event string) bool {
	if _, ok := r.templates[event]; ok {
		return true
	}

	_, ok := r.aliases[event]

	return ok
}

// expandAliases substitutes the service token for every known service name,
// building the alias map for an "each"-scoped template. At least one
// substitution must occur.
func (r *Registry) expandAliases(tpl *models.ProbeTemplate) error {
	if !strings.Contains(tpl.Event, models.ServiceToken) {
		return fmt.Errorf("%w: template %q from %q is scoped %q but has no %q token",
			ErrInvalidTemplate, tpl.Event, tpl.Origin, models.ScopeEach, models.ServiceToken)
	}

	expanded := make([]Alias, 0, len(r.services))

	for _, svc := range r.services {
		alias := strings.ReplaceAll(tpl.Event, models.ServiceToken, svc)
		if r.knownEvent(alias) {
			return fmt.Errorf("%w: %q expanded from %q in %q", ErrDuplicateEvent, alias, tpl.Event, tpl.Origin)
		}

		expanded = append(expanded, Alias{Event: alias, Service: svc})
	}

	if len(expanded) == 0 {
		return fmt.Errorf("%w: template %q from %q expanded to no events",
			ErrInvalidTemplate, tpl.Event, tpl.Origin)
	}

	for _, a := range expanded {
		r.aliases[a.Event] = tpl.Event
		r.aliasService[a.Event] = a.Service
	}

	r.aliasesByEvent[tpl.Event] = expanded

	return nil
}

func (r *Registry) validateServiceScope(tpl *models.ProbeTemplate) error {
	if !r.knownService(tpl.Scope.Service) {
		return fmt.Errorf("%w: template %q from %q names unknown service %q",
			ErrUnknownService, tpl.Event, tpl.Origin, tpl.Scope.Service)
	}

	if tpl.Scope.CheckFrom != "" {
		if !r.knownService(tpl.Scope.CheckFrom) {
			return fmt.Errorf("%w: template %q from %q checks from unknown service %q",
				ErrUnknownService, tpl.Event, tpl.Origin, tpl.Scope.CheckFrom)
		}

		if tpl.Scope.CheckFrom == tpl.Scope.Service {
			return fmt.Errorf("%w: template %q from %q checks a service from itself",
				ErrInvalidTemplate, tpl.Event, tpl.Origin)
		}
	}

	return nil
}

func (r *Registry) knownService(name string) bool {
	for _, svc := range r.services {
		if svc == name {
			return true
		}
	}

	return false
}

// ResolveEventName returns the canonical event name for an alias, the name
// itself if already canonical, or "" if unknown.
func (r *Registry) ResolveEventName(name string) string {
	if _, ok := r.templates[name]; ok {
		return name
	}

	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}

	return ""
}

// TemplateForEvent returns the template behind an event name or alias, or nil.
func (r *Registry) TemplateForEvent(name string) *models.ProbeTemplate {
	canonical := r.ResolveEventName(name)
	if canonical == "" {
		return nil
	}

	return r.templates[canonical]
}

// Templates returns the registered templates sorted by event name.
func (r *Registry) Templates() []*models.ProbeTemplate {
	events := make([]string, 0, len(r.templates))
	for event := range r.templates {
		events = append(events, event)
	}

	sort.Strings(events)

	out := make([]*models.ProbeTemplate, 0, len(events))
	for _, event := range events {
		out = append(out, r.templates[event])
	}

	return out
}

// AliasesFor returns the per-service aliases of an "each"-scoped template's
// canonical event, sorted by service.
func (r *Registry) AliasesFor(event string) []Alias {
	return r.aliasesByEvent[event]
}

// Services returns the known service names, sorted, with the compute
// pseudo-service excluded.
func (r *Registry) Services() []string {
	return r.services
}

// ComputeService returns the excluded compute pseudo-service name.
func (r *Registry) ComputeService() string {
	return r.computeService
}

// ServiceForEvent returns the service responsible for an event name, when the
// event binds to exactly one service. All-scoped events return ok == false.
func (r *Registry) ServiceForEvent(event string) (string, bool) {
	if svc, ok := r.aliasService[event]; ok {
		return svc, true
	}

	tpl, ok := r.templates[event]
	if !ok {
		return "", false
	}

	switch tpl.Scope.Service {
	case models.ScopeAll, models.ScopeEach:
		return "", false
	default:
		if tpl.Scope.CheckFrom != "" {
			return tpl.Scope.CheckFrom, true
		}

		return tpl.Scope.Service, true
	}
}
