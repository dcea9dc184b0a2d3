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

package reconcile

import (
	"github.com/fleetmon/probeadm/pkg/amon"
	"github.com/fleetmon/probeadm/pkg/logger"
	"github.com/fleetmon/probeadm/pkg/models"
)

// Config is the on-disk configuration for the reconciler.
type Config struct {
	// Account is the monitoring API account that owns every managed group.
	Account string `json:"account"`
	// Contacts are stamped into every generated probe group.
	Contacts []string `json:"contacts"`
	// Amon configures the monitoring API client.
	Amon amon.Config `json:"amon"`
	// TemplateDir holds the probe template JSON files.
	TemplateDir string `json:"template_dir"`
	// TopologyPath points at the deployment topology snapshot.
	TopologyPath string `json:"topology_path"`
	// Concurrency bounds parallel API calls during fetch and apply.
	Concurrency int `json:"concurrency,omitempty"`
	// Services overrides the default service roster when set.
	Services []string `json:"services,omitempty"`
	// Logging configures structured log output.
	Logging *logger.Config `json:"logging,omitempty"`
	// NATS enables reconcile-outcome events when a URL is set.
	NATS *models.NATSConfig `json:"nats,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Account == "" {
		return ErrMissingAccount
	}

	if len(c.Contacts) == 0 {
		return ErrMissingContacts
	}

	if c.Amon.Endpoint == "" {
		return ErrMissingEndpoint
	}

	if c.TemplateDir == "" {
		return ErrMissingTemplateDir
	}

	if c.TopologyPath == "" {
		return ErrMissingTopologyPath
	}

	return nil
}
