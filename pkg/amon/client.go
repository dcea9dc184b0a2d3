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

// Package amon talks to the remote monitoring service: probe group and probe
// CRUD plus the per-agent probe listing used to enumerate deployed state.
package amon

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fleetmon/probeadm/pkg/logger"
	"github.com/fleetmon/probeadm/pkg/models"
)

// Config holds the connection settings for the Amon master API.
type Config struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token,omitempty"`
	//nolint:gosec // operators may point probeadm at a lab Amon with self-signed certs
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`
}

// APIClient is the HTTP implementation of Client.
type APIClient struct {
	config Config
	client *http.Client
	log    logger.Logger
}

var _ Client = (*APIClient)(nil)

// NewClient builds an APIClient for the configured endpoint.
func NewClient(config Config, log logger.Logger) (*APIClient, error) {
	if config.Endpoint == "" {
		return nil, errMissingEndpoint
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &APIClient{
		config: config,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: config.InsecureSkipVerify, //nolint:gosec
				},
			},
		},
		log: log.WithComponent("amon"),
	}, nil
}

// ListProbeGroups implements Client.
func (c *APIClient) ListProbeGroups(ctx context.Context, account string) ([]*models.ProbeGroup, error) {
	var groups []*models.ProbeGroup

	path := fmt.Sprintf("/pub/%s/probegroups", url.PathEscape(account))
	if err := c.do(ctx, http.MethodGet, path, nil, &groups); err != nil {
		return nil, fmt.Errorf("listing probe groups: %w", err)
	}

	return groups, nil
}

// ListAgentProbes implements Client.
func (c *APIClient) ListAgentProbes(ctx context.Context, agent string) ([]*models.Probe, error) {
	var probes []*models.Probe

	path := "/agentprobes?agent=" + url.QueryEscape(agent)
	if err := c.do(ctx, http.MethodGet, path, nil, &probes); err != nil {
		return nil, fmt.Errorf("listing probes for agent %s: %w", agent, err)
	}

	return probes, nil
}

// CreateProbeGroup implements Client.
func (c *APIClient) CreateProbeGroup(ctx context.Context, account string, group *models.ProbeGroup) (*models.ProbeGroup, error) {
	// The server assigns the uuid; sending the name placeholder confuses
	// older Amon releases.
	payload := *group
	payload.UUID = ""

	var created models.ProbeGroup

	path := fmt.Sprintf("/pub/%s/probegroups", url.PathEscape(account))
	if err := c.do(ctx, http.MethodPost, path, &payload, &created); err != nil {
		return nil, fmt.Errorf("creating probe group %q: %w", group.Name, err)
	}

	return &created, nil
}

// DeleteProbeGroup implements Client.
func (c *APIClient) DeleteProbeGroup(ctx context.Context, account, groupUUID string) error {
	path := fmt.Sprintf("/pub/%s/probegroups/%s", url.PathEscape(account), url.PathEscape(groupUUID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting probe group %s: %w", groupUUID, err)
	}

	return nil
}

// CreateProbe implements Client.
func (c *APIClient) CreateProbe(ctx context.Context, account string, probe *models.Probe) (*models.Probe, error) {
	var created models.Probe

	path := fmt.Sprintf("/pub/%s/probes", url.PathEscape(account))
	if err := c.do(ctx, http.MethodPost, path, probe, &created); err != nil {
		return nil, fmt.Errorf("creating probe %q on agent %s: %w", probe.Name, probe.Agent, err)
	}

	return &created, nil
}

// DeleteProbe implements Client.
func (c *APIClient) DeleteProbe(ctx context.Context, account, probeUUID string) error {
	path := fmt.Sprintf("/pub/%s/probes/%s", url.PathEscape(account), url.PathEscape(probeUUID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting probe %s: %w", probeUUID, err)
	}

	return nil
}

// do runs one request against the API: JSON in, JSON out, non-2xx is an
// error carrying the response body.
func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader = http.NoBody

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}

		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.Endpoint, "/")+path, reqBody)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Token "+c.config.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer c.closeResponse(resp)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %d (%s)", errUnexpectedStatusCode, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func (c *APIClient) closeResponse(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.log.Warn().Err(err).Msg("failed to close response body")
	}
}
