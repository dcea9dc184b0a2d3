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

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fleetmon/probeadm/pkg/models"
)

// LoadFile parses one template document (a JSON array of templates) and
// registers every template in it. Parse and validation failures are collected
// across the whole file so operators see every problem at once.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read template file '%s': %w", path, err)
	}

	var tpls []models.ProbeTemplate
	if err := json.Unmarshal(data, &tpls); err != nil {
		return fmt.Errorf("failed to parse template file '%s': %w", path, err)
	}

	origin := filepath.Base(path)

	var errs []error

	for i := range tpls {
		tpl := tpls[i]
		tpl.Origin = origin

		if err := r.AddTemplate(&tpl); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// LoadDir registers every "*.json" template document under dir, in lexical
// order so registration is deterministic. Per-file errors are collected; a
// failing file does not stop the others from loading.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read template dir '%s': %w", dir, err)
	}

	var paths []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(paths)

	var errs []error

	for _, path := range paths {
		if err := r.LoadFile(path); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
