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

//go:generate mockgen -destination=mock_client.go -package=amon github.com/fleetmon/probeadm/pkg/amon Client

package amon

import (
	"context"

	"github.com/fleetmon/probeadm/pkg/models"
)

// Client is the remote monitoring mutation/query API. Transport, auth, and
// retry policy belong to the implementation; callers treat it as opaque.
type Client interface {
	// ListProbeGroups returns every probe group owned by the account.
	ListProbeGroups(ctx context.Context, account string) ([]*models.ProbeGroup, error)
	// ListAgentProbes returns the probes assigned to one agent. The remote
	// list API is capped at 1000 unpaginated results, so deployed-state
	// enumeration must go agent by agent.
	ListAgentProbes(ctx context.Context, agent string) ([]*models.Probe, error)
	// CreateProbeGroup creates a group and returns it with the
	// server-assigned uuid.
	CreateProbeGroup(ctx context.Context, account string, group *models.ProbeGroup) (*models.ProbeGroup, error)
	// DeleteProbeGroup deletes a group by uuid.
	DeleteProbeGroup(ctx context.Context, account, groupUUID string) error
	// CreateProbe creates a probe and returns it with the server-assigned
	// uuid. The probe's Group must hold the group uuid, not its name.
	CreateProbe(ctx context.Context, account string, probe *models.Probe) (*models.Probe, error)
	// DeleteProbe deletes a probe by uuid.
	DeleteProbe(ctx context.Context, account, probeUUID string) error
}
