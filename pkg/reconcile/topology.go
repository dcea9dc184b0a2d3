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
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fleetmon/probeadm/pkg/models"
)

// TopologyProvider supplies the deployment topology a reconciliation pass
// runs against.
type TopologyProvider interface {
	Topology(ctx context.Context) (*models.TopologySnapshot, error)
}

// FileTopologyProvider reads a topology snapshot from a JSON file. The file
// is re-read on every call so a long-lived process picks up redeployments.
type FileTopologyProvider struct {
	Path string
}

var _ TopologyProvider = (*FileTopologyProvider)(nil)

func (f *FileTopologyProvider) Topology(_ context.Context) (*models.TopologySnapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}

	var snapshot models.TopologySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse topology file %s: %w", f.Path, err)
	}

	// Instance identity travels as the map key; backfill it so consumers
	// holding a bare Instance still know which zone it is.
	for uuid, inst := range snapshot.Instances {
		inst.UUID = uuid
		snapshot.Instances[uuid] = inst
	}

	return &snapshot, nil
}
