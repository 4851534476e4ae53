/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Package config implements the supernode's YAML runtime configuration, the
// plain-text allowed-communities file, and the optional post-reload script
// hook, the way the teacher's config.SuperConfig / readYaml do for its
// device config.
package config

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	yaml "gopkg.in/yaml.v2"
)

// SuperConfig is the supernode's YAML-loadable runtime configuration.
type SuperConfig struct {
	NodeName string `yaml:"NodeName"`
	MAC      string `yaml:"MAC"`
	Version  string `yaml:"Version"`

	ListenPort   int    `yaml:"ListenPort"`
	ListenAddr   string `yaml:"ListenAddr"`
	EnableTCP    bool   `yaml:"EnableTCP"`

	ManagementPort     int    `yaml:"ManagementPort"`
	ManagementAddr     string `yaml:"ManagementAddr"`
	ManagementPassword string `yaml:"ManagementPassword"`

	CommunitiesFile string `yaml:"CommunitiesFile"`

	AutoIPMin    string `yaml:"AutoIPMin"`
	AutoIPMax    string `yaml:"AutoIPMax"`
	AutoIPPrefix int    `yaml:"AutoIPPrefix"`

	SpoofingProtection bool `yaml:"SpoofingProtection"`
	HeaderEncryption   bool `yaml:"HeaderEncryption"`
	CommunityPassword  string `yaml:"CommunityPassword"`
	ReplayWindowSize   int    `yaml:"ReplayWindowSize"`

	SweepIntervalSec    int64 `yaml:"SweepIntervalSec"`
	PeerTTLSec          int64 `yaml:"PeerTTLSec"`
	ReRegIntervalSec    int64 `yaml:"ReRegIntervalSec"`
	FedReRegIntervalSec int64 `yaml:"FedReRegIntervalSec"`

	LogLevel string `yaml:"LogLevel"`

	PostReloadScript string `yaml:"PostReloadScript"`
}

// DefaultSuperConfig mirrors the documented external-interface defaults
// (auto-IP pool, management port 5645, listening on localhost).
func DefaultSuperConfig() SuperConfig {
	return SuperConfig{
		NodeName:            "supernode",
		ListenPort:          7654,
		ListenAddr:          "",
		ManagementPort:      5645,
		ManagementAddr:      "127.0.0.1",
		AutoIPMin:           "10.128.255.0",
		AutoIPMax:           "10.255.255.0",
		AutoIPPrefix:        24,
		SpoofingProtection:  true,
		ReplayWindowSize:    1024,
		SweepIntervalSec:    10,
		PeerTTLSec:          120,
		ReRegIntervalSec:    60,
		FedReRegIntervalSec: 60,
		LogLevel:            "normal",
	}
}

// Load reads and parses a YAML config file.
func Load(path string) (SuperConfig, error) {
	c := DefaultSuperConfig()
	f, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}

// PrintExample writes a fully-populated example config to stdout, the way
// printExampleSuperConf does for the teacher's CLI -print-example flag.
func PrintExample() error {
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(DefaultSuperConfig())
}

// LoadAllowedCommunities parses the plain-text allowed-communities file:
// one name per line, leading '#' comment lines and blank lines ignored.
func LoadAllowedCommunities(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names, sc.Err()
}

// RunPostReloadScript splits and executes script the way the teacher splits
// PostScript before exec.Command, invoked after a successful community
// reload (JSON-RPC reload_communities or the communities-file watcher).
func RunPostReloadScript(script string) (output []byte, err error) {
	if script == "" {
		return nil, nil
	}
	args, err := shlex.Split(script)
	if err != nil {
		return nil, fmt.Errorf("config: parse post_reload_script: %w", err)
	}
	if len(args) == 0 {
		return nil, nil
	}
	cmd := exec.Command(args[0], args[1:]...)
	return cmd.CombinedOutput()
}
