// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by Load.
// A double underscore separates sections, so OIDC_RP_OIDC__CLIENT_ID sets
// oidc.client_id.
const EnvPrefix = "OIDC_RP_"

// sliceKeys are parsed as comma separated lists when set from the
// environment.
var sliceKeys = []string{
	"oidc.scopes",
	"policy.deny_usernames",
}

// Load layers the configuration: Defaults, then the YAML file at path
// (skipped when path is empty), then the environment. The result is
// validated before it's returned.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("%s: unable to load defaults: %w", op, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%s: unable to load config file %s: %w", op, path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("%s: unable to load environment: %w", op, err)
	}
	if err := splitSliceKeys(k); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal config: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}

// envKey maps OIDC_RP_SESSION__COOKIE_SECURE to session.cookie_secure.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func splitSliceKeys(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		parts := []string{}
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("unable to set %s: %w", key, err)
		}
	}
	return nil
}
