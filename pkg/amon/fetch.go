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

package amon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fleetmon/probeadm/pkg/configset"
	"github.com/fleetmon/probeadm/pkg/logger"
	"github.com/fleetmon/probeadm/pkg/models"
)

const defaultFetchConcurrency = 10

// FetchParams configures a deployed-state fetch.
type FetchParams struct {
	Account string
	// Agents are the entities whose probes to enumerate: every local
	// instance plus every compute node.
	Agents      []string
	Concurrency int
	Logger      logger.Logger
}

// FetchDeployed loads the account's deployed state into a ConfigSet: the
// group listing first, then a bounded-concurrency fan-out over per-agent
// probe listings. Per-agent listing errors are collected so one unreachable
// agent record does not hide the others; any error fails the whole fetch,
// since a partial deployed view would produce a destructive plan.
func FetchDeployed(ctx context.Context, client Client, params FetchParams) (*configset.ConfigSet, error) {
	log := params.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	groups, err := client.ListProbeGroups(ctx, params.Account)
	if err != nil {
		return nil, err
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	cs := configset.New()

	for _, group := range groups {
		if err := cs.AddProbeGroup(group); err != nil {
			return nil, err
		}
	}

	agents := append([]string(nil), params.Agents...)
	sort.Strings(agents)

	probesByAgent, err := fetchAgentProbes(ctx, client, agents, params.Concurrency)
	if err != nil {
		return nil, err
	}

	for i := range agents {
		for _, probe := range probesByAgent[i] {
			if err := cs.AddProbe(probe); err != nil {
				return nil, err
			}
		}
	}

	log.Debug().
		Int("groups", cs.GroupCount()).
		Int("probes", cs.ProbeCount()).
		Int("orphans", cs.OrphanCount()).
		Int("agents", len(agents)).
		Msg("fetched deployed config set")

	return cs, nil
}

// fetchAgentProbes fans the per-agent listings out over a bounded worker
// pool. Results keep their slot in the agents slice so assembly order is
// deterministic.
func fetchAgentProbes(ctx context.Context, client Client, agents []string, concurrency int) ([][]*models.Probe, error) {
	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}

	results := make([][]*models.Probe, len(agents))
	listErrs := make([]error, len(agents))
	work := make(chan int)

	var wg sync.WaitGroup

	for w := 0; w < concurrency; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for idx := range work {
				probes, err := client.ListAgentProbes(ctx, agents[idx])
				if err != nil {
					listErrs[idx] = fmt.Errorf("agent %s: %w", agents[idx], err)
					continue
				}

				sort.Slice(probes, func(i, j int) bool {
					if probes[i].Name != probes[j].Name {
						return probes[i].Name < probes[j].Name
					}

					return probes[i].UUID < probes[j].UUID
				})

				results[idx] = probes
			}
		}()
	}

	for idx := range agents {
		work <- idx
	}

	close(work)
	wg.Wait()

	if err := errors.Join(listErrs...); err != nil {
		return nil, err
	}

	return results, nil
}
