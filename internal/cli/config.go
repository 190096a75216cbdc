// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/readerai/internal/config"
)

// =============================================================================
// HANDLE CONFIG
// =============================================================================

// HandleConfig handles "config show|get|set|keys|path|reset".
func HandleConfig(args Args, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw, "confirm", "encrypt")
	switch sub := p.Subcommand(); sub {
	case "", "show":
		return configShow(args, stdout, stderr)
	case "get":
		return configGet(args, p.Positional(1), stdout, stderr)
	case "set":
		return configSet(args, p.Positional(1), JoinPositionalArgs(p, 2), p.BoolFlag("encrypt"), stdout)
	case "keys":
		for _, k := range config.GetAllKeys() {
			fmt.Fprintln(stdout, k)
		}
		return nil
	case "path":
		return configPath(args, stdout, stderr)
	case "reset":
		if !p.BoolFlag("confirm") {
			return NewValidationErrorWithExample("confirm", "", "reset overwrites the config file", "readerai config reset --confirm")
		}
		return configReset(args, stdout, stderr)
	default:
		return NewValidationErrorWithExample("subcommand", sub, "unknown config subcommand", "readerai config show")
	}
}

// configFile returns the file config commands read and write.
func configFile(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

// configShow prints every setting grouped by section. Secrets are shown as
// fingerprints.
func configShow(args Args, stdout, stderr io.Writer) error {
	cfg, path, err := loadConfig(args, stderr)
	if err != nil {
		return err
	}

	values := make(map[string]any)
	for _, key := range config.GetAllKeys() {
		v, err := cfg.Get(key)
		if err != nil {
			continue
		}
		if config.IsSecretKey(key) {
			v = maskSecret(fmt.Sprint(v))
		}
		values[key] = v
	}

	data := map[string]any{"path": path, "values": values}
	return OutputJSON(stdout, args.JSON, "config show", data, func() error {
		printConfig(stdout, path, values)
		return nil
	})
}

func printConfig(w io.Writer, path string, values map[string]any) {
	fmt.Fprintln(w, TitleStyle.Render("readerai configuration"))
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Config file"), path)
	section := ""
	for _, key := range config.GetAllKeys() {
		v, ok := values[key]
		if !ok {
			continue
		}
		sec, name, found := strings.Cut(key, ".")
		if !found {
			sec, name = "general", key
		}
		if sec != section {
			section = sec
			fmt.Fprintln(w, SectionStyle.Render("["+sec+"]"))
		}
		fmt.Fprintf(w, "  %s %v\n", RenderLabel(name, 20), v)
	}
}

func configGet(args Args, key string, stdout, stderr io.Writer) error {
	if key == "" {
		return ErrMissingArgument("key", "readerai config get llm.model")
	}
	cfg, _, err := loadConfig(args, stderr)
	if err != nil {
		return err
	}
	v, err := cfg.Get(key)
	if err != nil {
		return NewValidationError("key", key, err.Error())
	}
	if config.IsSecretKey(key) {
		v = maskSecret(fmt.Sprint(v))
	}
	return OutputJSON(stdout, args.JSON, "config get", map[string]any{"key": key, "value": v}, func() error {
		_, err := fmt.Fprintln(stdout, v)
		return err
	})
}

// configSet changes one key in the config file. The file is read without
// environment overrides so that variables such as READERAI_API_KEY are not
// written to disk, and sealed values stay sealed. With encrypt, a secret is
// sealed before it is stored.
func configSet(args Args, key, value string, encrypt bool, stdout io.Writer) error {
	if key == "" {
		return ErrMissingArgument("key", "readerai config set llm.model gpt-4o-mini")
	}
	path, err := configFile(args)
	if err != nil {
		return err
	}
	cfg, err := readConfigFile(path)
	if err != nil {
		return err
	}

	stored := value
	if encrypt {
		if !config.IsSecretKey(key) {
			return NewValidationErrorWithExample("encrypt", key, "only credentials can be sealed",
				"readerai config set --encrypt llm.api_key sk-...")
		}
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		sealer, err := config.LoadSealer(dir, true)
		if err != nil {
			return NewCommandError("config", "seal", key, err)
		}
		if stored, err = sealer.Seal(value); err != nil {
			return NewCommandError("config", "seal", key, err)
		}
	}

	if err := cfg.Set(key, stored); err != nil {
		return NewValidationError("key", key, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration value: %w", err)
	}
	if err := writeConfigFile(cfg, path); err != nil {
		return err
	}

	shown := value
	if config.IsSecretKey(key) {
		shown = maskSecret(value)
	}
	if encrypt {
		shown += " (sealed)"
	}
	fmt.Fprintf(stdout, "%s %s = %s\n", RenderStatus("ok"), key, shown)
	return nil
}

func configPath(args Args, stdout, stderr io.Writer) error {
	path, err := configFile(args)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil
	return OutputJSON(stdout, args.JSON, "config path", map[string]any{"path": path, "exists": exists}, func() error {
		fmt.Fprintln(stdout, path)
		if !exists {
			fmt.Fprintln(stderr, DimStyle.Render("(file does not exist yet; config set creates it)"))
		}
		return nil
	})
}

// configReset writes the defaults and clears the preferences and state the
// bridge stored in the notes database. The database is located with the
// settings in force before the reset.
func configReset(args Args, stdout, stderr io.Writer) error {
	path, err := configFile(args)
	if err != nil {
		return err
	}
	if err := clearStoredPreferences(args, stderr); err != nil {
		fmt.Fprintf(stderr, "%s stored preferences not cleared: %v\n", WarningStyle.Render("[WARN]"), err)
	}
	if err := writeConfigFile(config.Default(), path); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s configuration reset to defaults: %s\n", RenderStatus("ok"), path)
	return nil
}

func clearStoredPreferences(args Args, stderr io.Writer) error {
	db, closeStore, err := openStore(args, stderr)
	if err != nil {
		return err
	}
	defer closeStore()

	var errs []error
	for _, key := range config.PreferenceKeys() {
		errs = append(errs, db.DeletePref(key))
	}
	return errors.Join(errs...)
}

// readConfigFile decodes path over the defaults, without environment
// overrides. A missing file yields the defaults.
func readConfigFile(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	load := config.LoadTOML
	if strings.HasSuffix(path, ".json") {
		load = config.LoadJSON
	}
	if err := load(cfg, path); err != nil {
		return nil, NewCommandError("config", "read", path, err)
	}
	return cfg, nil
}

func writeConfigFile(cfg *config.Config, path string) error {
	save := config.SaveTOML
	if strings.HasSuffix(path, ".json") {
		save = config.SaveJSON
	}
	if err := save(cfg, path); err != nil {
		return NewCommandError("config", "save", path, err)
	}
	return nil
}

// maskSecret shows a short fingerprint instead of a credential, so keys can
// be told apart without exposing a prefix.
func maskSecret(value string) string {
	if value == "" {
		return "(not set)"
	}
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("sha256:%x...", sum[:4])
}
