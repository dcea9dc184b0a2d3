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

// Package reconcile orchestrates one full pass: generate the wanted config
// set from templates and topology, fetch the deployed state, diff the two,
// and optionally push the resulting plan. Every pass is stateless; the
// deployed fleet itself is the only record of what exists.
package reconcile

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetmon/probeadm/pkg/amon"
	"github.com/fleetmon/probeadm/pkg/apply"
	"github.com/fleetmon/probeadm/pkg/configset"
	"github.com/fleetmon/probeadm/pkg/diff"
	"github.com/fleetmon/probeadm/pkg/generator"
	"github.com/fleetmon/probeadm/pkg/logger"
	"github.com/fleetmon/probeadm/pkg/models"
	"github.com/fleetmon/probeadm/pkg/natsutil"
	"github.com/fleetmon/probeadm/pkg/registry"
)

// EventSink receives reconcile-outcome events. *natsutil.EventPublisher
// satisfies it; a nil sink disables publishing.
type EventSink interface {
	PublishReconcile(ctx context.Context, eventType string, data *models.ReconcileEventData) error
}

// Params configures a Service.
type Params struct {
	Registry    *registry.Registry
	Client      amon.Client
	Topology    TopologyProvider
	Events      EventSink
	Account     string
	Contacts    []string
	Concurrency int
	Logger      logger.Logger
}

// Service runs reconciliation passes for one account.
type Service struct {
	registry    *registry.Registry
	client      amon.Client
	topo        TopologyProvider
	events      EventSink
	account     string
	contacts    []string
	concurrency int
	log         logger.Logger
}

// New returns a reconcile service.
func New(params Params) (*Service, error) {
	if params.Registry == nil {
		return nil, errMissingRegistry
	}

	if params.Client == nil {
		return nil, errMissingClient
	}

	if params.Topology == nil {
		return nil, errMissingTopology
	}

	if params.Account == "" {
		return nil, ErrMissingAccount
	}

	log := params.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Service{
		registry:    params.Registry,
		client:      params.Client,
		topo:        params.Topology,
		events:      params.Events,
		account:     params.Account,
		contacts:    params.Contacts,
		concurrency: params.Concurrency,
		log:         log.WithComponent("reconcile"),
	}, nil
}

// Outcome is the result of an Apply or Unconfigure pass.
type Outcome struct {
	// Plan is the plan that was pushed.
	Plan *diff.Plan
	// Applied counts the mutations that landed; nil when nothing was staged.
	Applied *apply.Result
	// Converged reports whether a post-apply re-fetch found the fleet in
	// the wanted state.
	Converged bool
}

// Plan builds the update plan without touching the fleet.
func (s *Service) Plan(ctx context.Context) (*diff.Plan, error) {
	return s.buildPlan(ctx, false)
}

// Apply builds the plan, pushes it, and re-fetches the deployed state to
// confirm convergence.
func (s *Service) Apply(ctx context.Context) (*Outcome, error) {
	return s.run(ctx, false)
}

// Unconfigure tears down every managed and legacy probe group while
// preserving operator-created ones.
func (s *Service) Unconfigure(ctx context.Context) (*Outcome, error) {
	return s.run(ctx, true)
}

// Verify builds a plan and reports drift without applying. A drift event is
// published when the fleet is out of sync.
func (s *Service) Verify(ctx context.Context) (*diff.Plan, error) {
	plan, err := s.buildPlan(ctx, false)
	if err != nil {
		return nil, err
	}

	if plan.NeedsChanges() {
		s.publish(ctx, natsutil.EventTypeDrift, s.eventData(plan, nil, false))
	}

	return plan, nil
}

func (s *Service) run(ctx context.Context, unconfigure bool) (*Outcome, error) {
	plan, err := s.buildPlan(ctx, unconfigure)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Plan: plan}

	if !plan.NeedsChanges() {
		s.log.Info().Msg("Fleet already converged, nothing to apply")

		outcome.Converged = true

		return outcome, nil
	}

	engine, err := apply.New(apply.Params{
		Client:      s.client,
		Account:     s.account,
		Concurrency: s.concurrency,
		Logger:      s.log,
	})
	if err != nil {
		return nil, err
	}

	outcome.Applied, err = engine.Run(ctx, plan)
	if err != nil {
		return outcome, err
	}

	verifyPlan, err := s.buildPlan(ctx, unconfigure)
	if err != nil {
		return outcome, err
	}

	outcome.Converged = !verifyPlan.NeedsChanges()

	if !outcome.Converged {
		s.log.Warn().
			Int("groups_add", len(verifyPlan.GroupsAdd)).
			Int("groups_remove", len(verifyPlan.GroupsRemove)).
			Int("probes_add", len(verifyPlan.ProbesAdd)).
			Int("probes_remove", len(verifyPlan.ProbesRemove)).
			Msg("Fleet did not converge after apply, re-run to retry the remainder")
	}

	s.publish(ctx, natsutil.EventTypeApplied, s.eventData(plan, outcome.Applied, outcome.Converged))

	return outcome, nil
}

// buildPlan generates the wanted config set and fetches the deployed one in
// parallel, then diffs them. On unconfigure the wanted set is empty.
func (s *Service) buildPlan(ctx context.Context, unconfigure bool) (*diff.Plan, error) {
	topo, err := s.topo.Topology(ctx)
	if err != nil {
		return nil, err
	}

	var (
		wanted   *configset.ConfigSet
		deployed *configset.ConfigSet
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if unconfigure {
			wanted = configset.New()
			return nil
		}

		gen, err := generator.New(s.registry, s.account, s.contacts, s.log)
		if err != nil {
			return err
		}

		wanted, err = gen.Generate(topo)

		return err
	})

	g.Go(func() error {
		var err error

		deployed, err = amon.FetchDeployed(gctx, s.client, amon.FetchParams{
			Account:     s.account,
			Agents:      s.agents(topo),
			Concurrency: s.concurrency,
			Logger:      s.log,
		})

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return diff.BuildPlan(diff.Params{
		Wanted:      wanted,
		Deployed:    deployed,
		Registry:    s.registry,
		Unconfigure: unconfigure,
		Logger:      s.log,
	})
}

// agents returns every agent uuid worth listing: each local instance plus
// the compute nodes that host global-scope probes.
func (s *Service) agents(topo *models.TopologySnapshot) []string {
	seen := make(map[string]struct{})

	for uuid, inst := range topo.Instances {
		if inst.Local {
			seen[uuid] = struct{}{}
		}
	}

	for _, uuid := range topo.NodeUUIDs {
		seen[uuid] = struct{}{}
	}

	agents := make([]string, 0, len(seen))
	for uuid := range seen {
		agents = append(agents, uuid)
	}

	return agents
}

func (s *Service) eventData(plan *diff.Plan, applied *apply.Result, converged bool) *models.ReconcileEventData {
	data := &models.ReconcileEventData{
		Account:        s.account,
		GroupsMatched:  plan.GroupsMatched,
		ProbesMatched:  plan.ProbesMatched,
		GroupsIgnored:  plan.GroupsIgnored,
		Warnings:       plan.Warnings,
		Converged:      converged,
		Timestamp:      time.Now().UTC(),
		AffectedAgents: plan.AffectedAgents(),
	}

	if applied != nil {
		data.GroupsAdded = applied.GroupsAdded
		data.GroupsRemoved = applied.GroupsRemoved
		data.ProbesAdded = applied.ProbesAdded
		data.ProbesRemoved = applied.ProbesRemoved
	} else {
		data.GroupsAdded = len(plan.GroupsAdd)
		data.GroupsRemoved = len(plan.GroupsRemove)
		data.ProbesAdded = len(plan.ProbesAdd)
		data.ProbesRemoved = len(plan.ProbesRemove)
	}

	return data
}

// publish sends an event best-effort: a broker outage never fails a pass
// whose fleet mutations already landed.
func (s *Service) publish(ctx context.Context, eventType string, data *models.ReconcileEventData) {
	if s.events == nil {
		return
	}

	if err := s.events.PublishReconcile(ctx, eventType, data); err != nil {
		s.log.Warn().Err(err).Str("type", eventType).Msg("Failed to publish reconcile event")
	}
}
