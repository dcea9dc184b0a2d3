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

import "time"

// CloudEvent is a CloudEvents 1.0 envelope for events published to NATS.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// ReconcileEventData is the payload of reconciliation outcome events.
type ReconcileEventData struct {
	Account        string    `json:"account"`
	GroupsAdded    int       `json:"groups_added"`
	GroupsRemoved  int       `json:"groups_removed"`
	ProbesAdded    int       `json:"probes_added"`
	ProbesRemoved  int       `json:"probes_removed"`
	GroupsMatched  int       `json:"groups_matched"`
	ProbesMatched  int       `json:"probes_matched"`
	GroupsIgnored  int       `json:"groups_ignored"`
	Warnings       []string  `json:"warnings,omitempty"`
	Converged      bool      `json:"converged"`
	Timestamp      time.Time `json:"timestamp"`
	AffectedAgents []string  `json:"affected_agents,omitempty"`
}

// NATSConfig configures the optional reconciliation event publisher. An empty
// URL disables publishing.
type NATSConfig struct {
	URL     string         `json:"url"`
	Stream  string         `json:"stream,omitempty"`
	Subject string         `json:"subject,omitempty"`
	TLS     *NATSTLSConfig `json:"tls,omitempty"`
}

// NATSTLSConfig holds mTLS material for the NATS connection.
type NATSTLSConfig struct {
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	CAFile     string `json:"ca_file"`
	ServerName string `json:"server_name,omitempty"`
}
