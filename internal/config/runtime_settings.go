package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

var x264Presets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow",
}

// RuntimeSettings are the knobs editable through the settings API. They
// take effect on the next job or sweep without a restart.
type RuntimeSettings struct {
	EncodePreset string `json:"encode_preset"`
	EncodeCRF    int    `json:"encode_crf"`
	SweepCron    string `json:"sweep_cron"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func validateEncoding(preset string, crf int) error {
	if !slices.Contains(x264Presets, preset) {
		return fmt.Errorf("invalid encode preset %q", preset)
	}
	if crf < 0 || crf > 51 {
		return fmt.Errorf("encode crf must be within [0,51], got %d", crf)
	}
	return nil
}

// Validate reports every invalid field at once.
func (s RuntimeSettings) Validate() error {
	var problems []error
	if err := validateEncoding(s.EncodePreset, s.EncodeCRF); err != nil {
		problems = append(problems, err)
	}
	if strings.TrimSpace(s.SweepCron) == "" {
		problems = append(problems, fmt.Errorf("sweep_cron is required"))
	} else if _, err := cron.ParseStandard(s.SweepCron); err != nil {
		problems = append(problems, fmt.Errorf("invalid sweep_cron: %w", err))
	}
	return errors.Join(problems...)
}

// overlay returns s with every field o sets.
func (s RuntimeSettings) overlay(o RuntimeSettings) RuntimeSettings {
	if v := strings.TrimSpace(o.EncodePreset); v != "" {
		s.EncodePreset = v
	}
	if o.EncodeCRF > 0 {
		s.EncodeCRF = o.EncodeCRF
	}
	if v := strings.TrimSpace(o.SweepCron); v != "" {
		s.SweepCron = v
	}
	return s
}

// RuntimeSettings is the env-derived starting point for the settings store.
func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		EncodePreset: c.Engine.Preset,
		EncodeCRF:    c.Engine.CRF,
		SweepCron:    c.Jobs.SweepCron,
	}
}

// RuntimeSettingsStore serves the current settings and persists updates as
// JSON at path.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

// OpenRuntimeSettings starts from defaults and applies the fields set in the
// file at path. A missing file is created on the first update.
func OpenRuntimeSettings(path string, defaults RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}

	current := defaults
	saved, found, err := readSettingsFile(path)
	if err != nil {
		return nil, err
	}
	if found {
		current = defaults.overlay(saved)
		log.Info("Runtime settings loaded from %s", path)
	}
	if err := current.Validate(); err != nil {
		return nil, fmt.Errorf("runtime settings: %w", err)
	}
	return &RuntimeSettingsStore{path: path, current: current}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	return s.Current(), nil
}

func (s *RuntimeSettingsStore) Current() RuntimeSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// UpdateRuntimeSettings replaces the settings. Nothing changes unless the
// file write succeeds.
func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}
	s.current = next
	return next, nil
}

func readSettingsFile(path string) (RuntimeSettings, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return RuntimeSettings{}, false, nil
	}
	if err != nil {
		return RuntimeSettings{}, false, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, false, fmt.Errorf("invalid settings file %s: %w", path, err)
	}
	return settings, true, nil
}

// writeSettingsFile replaces path atomically via a temp file in the same
// directory.
func writeSettingsFile(path string, settings RuntimeSettings) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err = enc.Encode(settings); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
