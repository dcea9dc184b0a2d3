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

// Instance is one service instance in the fleet topology: a VM (or the
// compute node itself) tagged with the service role it fills.
type Instance struct {
	// UUID is the instance's identity. On the wire it is the key of the
	// snapshot's instance map, never a field of the value; consumers
	// populate it from the key.
	UUID     string `json:"-"`
	Service  string `json:"service"`
	NodeUUID string `json:"node_uuid"`
	// Local marks instances in the datacenter this process operates on;
	// probes are only deployed for local instances.
	Local bool `json:"local"`
	// Metadata holds the instance's external metadata. Only string values
	// are consulted (for autoEnv expansion); anything else is ignored.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TopologySnapshot is an already-built view of the fleet, produced by the
// inventory collaborator. NodeUUIDs enumerates the known compute nodes.
type TopologySnapshot struct {
	Instances map[string]Instance `json:"instances"`
	NodeUUIDs []string            `json:"node_uuids"`
}
