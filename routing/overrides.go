package routing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/atlas/intent"
)

// overrideFile is the on-disk chain override format. Keys are
// "PROFILE.JOB_CLASS"; values replace that combination's default chain.
//
//	chains:
//	  BALANCED.INTENT_ROUTING:
//	    - provider: groq
//	      model: llama-3.1-8b-instant
//	    - provider: ollama
//	      model: llama3.2:1b
type overrideFile struct {
	Chains map[string][]ModelRef `yaml:"chains"`
}

// ApplyOverridesFile loads chain overrides from a YAML file and applies
// them over the current table. Entries with unknown profiles, unknown job
// classes, or incomplete model refs are logged and skipped; retry caps are
// never affected. A missing or unparseable file is an error so the caller
// can decide whether to keep the previous table.
func (m *Manager) ApplyOverridesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read routing config: %w", err)
	}

	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse routing config %s: %w", path, err)
	}

	applied := 0
	for key, models := range file.Chains {
		profile, job, err := parseChainKey(key)
		if err != nil {
			m.logger.Warn("skipping routing override", "key", key, "error", err)
			continue
		}

		chain, err := validateChain(models)
		if err != nil {
			m.logger.Warn("skipping routing override", "key", key, "error", err)
			continue
		}

		m.ConfigureChain(profile, job, chain)
		applied++
	}

	m.logger.Info("routing overrides applied",
		"path", path,
		"applied", applied,
		"total", len(file.Chains))
	return nil
}

// parseChainKey splits "PROFILE.JOB_CLASS" and validates both halves.
func parseChainKey(key string) (intent.RoutingProfile, JobClass, error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("want PROFILE.JOB_CLASS, got %q", key)
	}

	profile := intent.RoutingProfile(strings.ToUpper(strings.TrimSpace(parts[0])))
	if !profile.IsValid() {
		return "", "", fmt.Errorf("unknown routing profile %q", parts[0])
	}

	job := JobClass(strings.ToUpper(strings.TrimSpace(parts[1])))
	if !job.IsValid() {
		return "", "", fmt.Errorf("unknown job class %q", parts[1])
	}

	return profile, job, nil
}

func validateChain(models []ModelRef) ([]ModelRef, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("empty chain")
	}

	for i, ref := range models {
		if ref.Provider == "" || ref.Model == "" {
			return nil, fmt.Errorf("entry %d missing provider or model", i)
		}
	}

	if len(models) > MaxModelsPerRequest {
		models = models[:MaxModelsPerRequest]
	}
	return models, nil
}
