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

// Package models defines the shared data types for probe reconciliation:
// probe templates, probes, probe groups, topology snapshots, and the wire
// schema spoken by the Amon API.
package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrMissingField is returned when a required field is absent at construction.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidUUID is returned when a field expected to hold a UUID does not parse as one.
	ErrInvalidUUID = errors.New("invalid uuid")
)

// ProbeGroup is a named collection of probes sharing alert-routing contacts.
// The name carries the group's encoded identity (see pkg/registry); UUID may
// temporarily equal Name for groups that have not been created remotely yet.
// The struct marshals directly to the Amon wire schema.
type ProbeGroup struct {
	UUID     string   `json:"uuid"`
	Name     string   `json:"name"`
	User     string   `json:"user"`
	Contacts []string `json:"contacts"`
	Disabled bool     `json:"disabled,omitempty"`
}

// NewProbeGroup validates and constructs a ProbeGroup. An empty uuid defaults
// to the name, the placeholder identity used before remote creation.
func NewProbeGroup(groupUUID, name, user string, contacts []string) (*ProbeGroup, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: probe group name", ErrMissingField)
	}

	if user == "" {
		return nil, fmt.Errorf("%w: probe group user", ErrMissingField)
	}

	if groupUUID == "" {
		groupUUID = name
	}

	return &ProbeGroup{
		UUID:     groupUUID,
		Name:     name,
		User:     user,
		Contacts: append([]string(nil), contacts...),
	}, nil
}

// Probe is one check definition (type + config) run by an agent against a
// machine. Group holds the group's name before remote creation and the
// group's uuid afterwards; UUID is set only once the probe exists remotely.
type Probe struct {
	UUID        string                 `json:"uuid,omitempty"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Config      map[string]interface{} `json:"config"`
	Agent       string                 `json:"agent"`
	Machine     string                 `json:"machine,omitempty"`
	Group       string                 `json:"group,omitempty"`
	Contacts    []string               `json:"contacts,omitempty"`
	GroupEvents bool                   `json:"groupEvents,omitempty"`
}

// NewProbe validates and constructs a Probe. Agent must be a UUID; Machine,
// when set, must be a UUID (it may equal Agent). Group may be empty for
// probes not attached to any group.
func NewProbe(p Probe) (*Probe, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: probe name", ErrMissingField)
	}

	if p.Type == "" {
		return nil, fmt.Errorf("%w: probe type (name %q)", ErrMissingField, p.Name)
	}

	if p.Agent == "" {
		return nil, fmt.Errorf("%w: probe agent (name %q)", ErrMissingField, p.Name)
	}

	if err := uuid.Validate(p.Agent); err != nil {
		return nil, fmt.Errorf("%w: probe agent %q", ErrInvalidUUID, p.Agent)
	}

	if p.Machine != "" {
		if err := uuid.Validate(p.Machine); err != nil {
			return nil, fmt.Errorf("%w: probe machine %q", ErrInvalidUUID, p.Machine)
		}
	}

	out := p
	out.Config = DeepCopyConfig(p.Config)
	out.Contacts = append([]string(nil), p.Contacts...)

	return &out, nil
}

// Deployed reports whether the probe exists remotely.
func (p *Probe) Deployed() bool {
	return p.UUID != ""
}

// DeepCopyConfig returns a copy of an opaque probe config with no aliasing of
// nested maps or slices. Values are the JSON-decoded kinds (string, float64,
// bool, nil, map, slice).
func DeepCopyConfig(config map[string]interface{}) map[string]interface{} {
	if config == nil {
		return nil
	}

	out := make(map[string]interface{}, len(config))
	for k, v := range config {
		out[k] = deepCopyValue(v)
	}

	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return DeepCopyConfig(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = deepCopyValue(elem)
		}

		return out
	default:
		return val
	}
}
