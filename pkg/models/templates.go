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

package models

// Scope values with special meaning in a template's scope.service field.
const (
	// ScopeEach expands the template once per known service; the event name
	// must carry the ServiceToken so each expansion is distinct.
	ScopeEach = "each"
	// ScopeAll applies a single event to every known service.
	ScopeAll = "all"
)

// ServiceToken is the substitution token in "each"-scoped event names.
const ServiceToken = "$service"

// CheckType constants for the check types the generator treats specially.
const (
	// CheckTypeCmd is the Amon command probe type. Command probes run on the
	// agent and do not support a distinct target machine.
	CheckTypeCmd = "cmd"
)

// AutoEnvKey is the config key of a cmd check listing environment variables
// to populate from the target instance's metadata. It is a local convenience
// stripped before anything is sent to the remote API.
const AutoEnvKey = "autoEnv"

// TemplateScope selects which instances a template's checks apply to.
type TemplateScope struct {
	Service   string `json:"service"`
	Global    bool   `json:"global,omitempty"`
	CheckFrom string `json:"checkFrom,omitempty"`
}

// CheckDef is a single check within a template: a probe type plus its opaque
// configuration.
type CheckDef struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// KA is the knowledge article attached to a template: operator-facing
// documentation surfaced in plan summaries and alert payloads.
type KA struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Response    string `json:"response"`
	Impact      string `json:"impact"`
	Action      string `json:"action"`
}

// ProbeTemplate is one declarative probe definition: an FMA-style event name,
// a scope, the checks to deploy, and the knowledge article. Immutable once
// parsed; Origin labels the source document for error reporting.
type ProbeTemplate struct {
	Origin string        `json:"-"`
	Event  string        `json:"event"`
	Scope  TemplateScope `json:"scope"`
	Checks []CheckDef    `json:"checks"`
	KA     KA            `json:"ka"`
}
