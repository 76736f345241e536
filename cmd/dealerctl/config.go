package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const defaultProfileName = "default"

// profile holds the connection settings and the session of one server.
type profile struct {
	Address string `yaml:"address"`
	Cookie  string `yaml:"cookie_name,omitempty"`
	CACert  string `yaml:"ca_cert,omitempty"`
	Token   string `yaml:"token,omitempty"`
}

// configFile is the on-disk layout: named profiles and the one in use.
type configFile struct {
	Current  string              `yaml:"current,omitempty"`
	Profiles map[string]*profile `yaml:"profiles"`
}

// overrides come from the environment. They apply to the loaded profile and
// are never written back.
type overrides struct {
	ConfigPath string `env:"DEALERCTL_CONFIG"`
	Profile    string `env:"DEALERCTL_PROFILE"`
	Address    string `env:"DEALERSHIP_ADDR"`
	Token      string `env:"DEALERSHIP_TOKEN"`
	CACert     string `env:"DEALERSHIP_CACERT"`
}

var (
	// cfg is the effective profile: stored values, then env overrides.
	cfg profile

	profileName string
	stored      configFile
	storedPath  string
)

func defaultProfile() profile {
	return profile{Address: "http://127.0.0.1:3000", Cookie: "_data_"}
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// loadConfig reads the config file, selects the profile named by --profile,
// DEALERCTL_PROFILE or the file, and applies environment overrides. A
// missing file is not an error.
func loadConfig() error {
	var ov overrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	storedPath = ov.ConfigPath
	if storedPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("locating config: %w", err)
		}
		storedPath = filepath.Join(home, ".dealership", "config.yaml")
	}

	stored = configFile{}
	data, err := os.ReadFile(storedPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("parsing %s: %w", storedPath, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("reading %s: %w", storedPath, err)
	}

	profileName = firstSet(profileName, ov.Profile, stored.Current, defaultProfileName)
	cfg = defaultProfile()
	if p := stored.Profiles[profileName]; p != nil {
		cfg.Address = firstSet(p.Address, cfg.Address)
		cfg.Cookie = firstSet(p.Cookie, cfg.Cookie)
		cfg.CACert = p.CACert
		cfg.Token = p.Token
	}
	cfg.Address = firstSet(ov.Address, cfg.Address)
	cfg.CACert = firstSet(ov.CACert, cfg.CACert)
	cfg.Token = firstSet(ov.Token, cfg.Token)
	return nil
}

// saveSession stores token in the current profile and makes it the active
// one. The file holds session tokens, so only the owner may read it.
func saveSession(token string) error {
	if stored.Profiles == nil {
		stored.Profiles = map[string]*profile{}
	}
	p := stored.Profiles[profileName]
	if p == nil {
		p = &profile{Address: cfg.Address, Cookie: cfg.Cookie, CACert: cfg.CACert}
		stored.Profiles[profileName] = p
	}
	p.Token = token
	stored.Current = profileName
	cfg.Token = token

	if err := os.MkdirAll(filepath.Dir(storedPath), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(&stored)
	if err != nil {
		return err
	}
	return os.WriteFile(storedPath, data, 0o600)
}
