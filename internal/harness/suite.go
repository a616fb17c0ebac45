package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// SuiteResult summarizes running every scenario under a path.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one failed scenario.
type ScenarioFailure struct {
	Scenario     string `json:"scenario"`
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool { return r.Failed == 0 }

// FindScenarios returns the scenario files at path: path itself when it is a
// file, otherwise every .yaml or .yml file below it, sorted.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(p))
		if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario under path. A scenario that fails
// to load counts as a failure; it does not stop the suite.
func (h *Harness) RunSuite(ctx context.Context, path string) (*SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, err
	}

	out := &SuiteResult{TotalScenarios: len(files)}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, msg := h.runFile(ctx, file)
		if msg == "" {
			out.Passed++
			h.logger.Debug("scenario passed", "scenario", name, "path", file)
			continue
		}
		out.Failed++
		out.Failures = append(out.Failures, ScenarioFailure{Scenario: name, ScenarioPath: file, Error: msg})
		h.logger.Warn("scenario failed", "scenario", name, "path", file)
	}
	return out, nil
}

// runFile returns the scenario name and a failure message, empty on pass.
func (h *Harness) runFile(ctx context.Context, file string) (string, string) {
	scenario, err := LoadScenario(file)
	if err != nil {
		return filepath.Base(file), err.Error()
	}
	result, err := h.Run(ctx, scenario)
	if err != nil {
		return scenario.Name, err.Error()
	}
	if !result.Pass {
		return scenario.Name, strings.Join(result.Errors, "\n")
	}
	return scenario.Name, ""
}
