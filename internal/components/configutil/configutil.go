// Package configutil loads json5 config files layered with local overrides and
// environment variables.
package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

// layers returns the files that make up a config, least prioritized first.
// ex. `config/app.json5` -> [`config/app.json5`, `config/app.local.json5`]
func layers(name string) []string {
	ext := filepath.Ext(name)
	return []string{
		name,
		strings.TrimSuffix(name, ext) + ".local" + ext,
	}
}

func readLayer[T any](path string) (T, bool, error) {
	var out T
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) || len(contents) == 0 {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	err = json5.Unmarshal(contents, &out)
	if err != nil {
		return out, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, true, nil
}

// ReadConfig reads the config file at name and merges `<name>.local.<ext>` on
// top of it if present, non-zero values of the local file win. If neither file
// exists os.ErrNotExist is returned.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false
	for i, path := range layers(name) {
		layer, ok, err := readLayer[T](path)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		if i > 0 {
			slog.Info("merging config with local overrides", "local", path)
		}
		err = mergo.Merge(&out, layer, mergo.WithOverride)
		if err != nil {
			return out, fmt.Errorf("merge %s: %w", path, err)
		}
		found = true
	}
	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// Load is ReadConfig followed by environment overrides declared with `env:"..."`
// struct tags, envPrefix is prepended to every tag. A missing config file is
// fine, the whole config may come from the environment.
func Load[T any](name, envPrefix string) (T, error) {
	out, err := ReadConfig[T](name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	err = env.ParseWithOptions(&out, env.Options{Prefix: envPrefix})
	if err != nil {
		return out, fmt.Errorf("parse env: %w", err)
	}
	return out, nil
}
