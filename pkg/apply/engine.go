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

// Package apply pushes a staged plan to the monitoring API in four strictly
// ordered phases: probe removals, group removals, group additions, probe
// additions. Removals run first so a group is never deleted under live
// probes and a rename never leaves both generations active. Every mutation
// is independent; a failed item never stops its phase siblings, but a phase
// that collected errors halts progression to the next one. Re-running the
// whole reconciliation pass after a partial apply converges on the same end
// state.
package apply

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fleetmon/probeadm/pkg/amon"
	"github.com/fleetmon/probeadm/pkg/diff"
	"github.com/fleetmon/probeadm/pkg/logger"
	"github.com/fleetmon/probeadm/pkg/models"
)

const defaultApplyConcurrency = 10

// Engine executes plans against one account.
type Engine struct {
	client      amon.Client
	account     string
	concurrency int
	log         logger.Logger
}

// Params configures an Engine.
type Params struct {
	Client      amon.Client
	Account     string
	Concurrency int
	Logger      logger.Logger
}

// New returns an apply engine.
func New(params Params) (*Engine, error) {
	if params.Client == nil {
		return nil, errMissingClient
	}

	if params.Account == "" {
		return nil, errMissingAccount
	}

	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultApplyConcurrency
	}

	log := params.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Engine{
		client:      params.Client,
		account:     params.Account,
		concurrency: concurrency,
		log:         log.WithComponent("apply"),
	}, nil
}

// Result reports what one Run actually pushed.
type Result struct {
	ProbesRemoved int
	GroupsRemoved int
	GroupsAdded   int
	ProbesAdded   int
}

// Run applies the plan. The returned Result counts the mutations that
// succeeded; on error it reflects progress up to the failing phase.
func (e *Engine) Run(ctx context.Context, plan *diff.Plan) (*Result, error) {
	result := &Result{}

	if !plan.NeedsChanges() {
		e.log.Info().Msg("Plan stages no changes, nothing to apply")
		return result, nil
	}

	groupUUIDs := e.seedGroupUUIDs(plan)

	phases := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{"remove probes", func(ctx context.Context) (int, error) {
			return e.removeProbes(ctx, plan.ProbesRemove)
		}},
		{"remove groups", func(ctx context.Context) (int, error) {
			return e.removeGroups(ctx, plan.GroupsRemove)
		}},
		{"add groups", func(ctx context.Context) (int, error) {
			return e.addGroups(ctx, plan.GroupsAdd, groupUUIDs)
		}},
		{"add probes", func(ctx context.Context) (int, error) {
			return e.addProbes(ctx, plan.ProbesAdd, groupUUIDs)
		}},
	}

	counts := []*int{
		&result.ProbesRemoved, &result.GroupsRemoved,
		&result.GroupsAdded, &result.ProbesAdded,
	}

	for i, phase := range phases {
		done, err := phase.run(ctx)
		*counts[i] = done

		if err != nil {
			return result, fmt.Errorf("%s: %w", phase.name, err)
		}
	}

	e.log.Info().
		Int("probes_removed", result.ProbesRemoved).
		Int("groups_removed", result.GroupsRemoved).
		Int("groups_added", result.GroupsAdded).
		Int("probes_added", result.ProbesAdded).
		Msg("Apply complete")

	return result, nil
}

// seedGroupUUIDs primes the symbolic-name resolution table with the groups
// that already exist remotely, so probe additions targeting a surviving
// group resolve without re-creating it.
func (e *Engine) seedGroupUUIDs(plan *diff.Plan) *groupUUIDTable {
	table := newGroupUUIDTable()

	if plan.Deployed != nil {
		plan.Deployed.EachProbeGroup(func(group *models.ProbeGroup) {
			table.record(group.Name, group.UUID)
		})
	}

	return table
}

func (e *Engine) removeProbes(ctx context.Context, probes []*models.Probe) (int, error) {
	tasks := make([]func(context.Context) error, 0, len(probes))

	for _, probe := range probes {
		probe := probe
		tasks = append(tasks, func(ctx context.Context) error {
			if err := e.client.DeleteProbe(ctx, e.account, probe.UUID); err != nil {
				return fmt.Errorf("probe %s (%s): %w", probe.Name, probe.UUID, err)
			}

			e.log.Debug().
				Str("probe", probe.Name).
				Str("agent", probe.Agent).
				Msg("Removed probe")

			return nil
		})
	}

	return e.runPhase(ctx, tasks)
}

func (e *Engine) removeGroups(ctx context.Context, groups []*models.ProbeGroup) (int, error) {
	tasks := make([]func(context.Context) error, 0, len(groups))

	for _, group := range groups {
		group := group
		tasks = append(tasks, func(ctx context.Context) error {
			if err := e.client.DeleteProbeGroup(ctx, e.account, group.UUID); err != nil {
				return fmt.Errorf("group %s (%s): %w", group.Name, group.UUID, err)
			}

			e.log.Debug().Str("group", group.Name).Msg("Removed probe group")

			return nil
		})
	}

	return e.runPhase(ctx, tasks)
}

func (e *Engine) addGroups(ctx context.Context, groups []*models.ProbeGroup, table *groupUUIDTable) (int, error) {
	tasks := make([]func(context.Context) error, 0, len(groups))

	for _, group := range groups {
		group := group
		tasks = append(tasks, func(ctx context.Context) error {
			created, err := e.client.CreateProbeGroup(ctx, e.account, group)
			if err != nil {
				return fmt.Errorf("group %s: %w", group.Name, err)
			}

			table.record(created.Name, created.UUID)

			e.log.Debug().
				Str("group", created.Name).
				Str("uuid", created.UUID).
				Msg("Created probe group")

			return nil
		})
	}

	return e.runPhase(ctx, tasks)
}

func (e *Engine) addProbes(ctx context.Context, probes []*models.Probe, table *groupUUIDTable) (int, error) {
	tasks := make([]func(context.Context) error, 0, len(probes))

	for _, probe := range probes {
		probe := probe
		tasks = append(tasks, func(ctx context.Context) error {
			groupUUID, ok := table.lookup(probe.Group)
			if !ok {
				return fmt.Errorf("%w: probe %s, group %q",
					ErrUnresolvedGroup, probe.Name, probe.Group)
			}

			// Staged probes carry the symbolic group name; the wire wants
			// the uuid. Rewrite a copy so the plan stays name-addressed.
			wire := *probe
			wire.Group = groupUUID

			created, err := e.client.CreateProbe(ctx, e.account, &wire)
			if err != nil {
				return fmt.Errorf("probe %s: %w", probe.Name, err)
			}

			e.log.Debug().
				Str("probe", created.Name).
				Str("agent", created.Agent).
				Str("group", probe.Group).
				Msg("Created probe")

			return nil
		})
	}

	return e.runPhase(ctx, tasks)
}

// runPhase runs every task with bounded concurrency and returns the number
// of tasks that succeeded alongside the joined errors of those that did not.
func (e *Engine) runPhase(ctx context.Context, tasks []func(context.Context) error) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	errs := make([]error, len(tasks))
	workCh := make(chan int, len(tasks))

	for i := range tasks {
		workCh <- i
	}

	close(workCh)

	workers := e.concurrency
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range workCh {
				errs[i] = tasks[i](ctx)
			}
		}()
	}

	wg.Wait()

	done := 0

	for _, err := range errs {
		if err == nil {
			done++
		}
	}

	return done, errors.Join(errs...)
}

// groupUUIDTable maps group names to uuids across the add phases. Guarded
// because group creations land concurrently.
type groupUUIDTable struct {
	mu    sync.Mutex
	uuids map[string]string
}

func newGroupUUIDTable() *groupUUIDTable {
	return &groupUUIDTable{uuids: make(map[string]string)}
}

func (t *groupUUIDTable) record(name, uuid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uuids[name] = uuid
}

func (t *groupUUIDTable) lookup(name string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	uuid, ok := t.uuids[name]

	return uuid, ok
}
