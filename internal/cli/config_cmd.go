// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - The "config" command.
//
// Command: config [subcommand]
//
// Subcommands:
//   show (default)   Print the effective configuration as TOML
//   get KEY          Print one value
//   set KEY VALUE    Write one value to the config file
//   path             Print the config file path
//   keys             List every key with its effective value

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/ollapa/internal/config"
)

// HandleConfig runs a config subcommand. It does not need the chat store,
// so it runs before the application is built.
func HandleConfig(out io.Writer, cfg *config.Config, cfgPath string, p *ArgParser) error {
	sub := strings.ToLower(p.Positional(0))

	switch sub {
	case "", "show":
		fmt.Fprintf(out, "# %s\n", cfgPath)
		return toml.NewEncoder(out).Encode(cfg)

	case "get":
		key := p.Positional(1)
		if key == "" {
			return ErrMissingArgument("KEY", "ollapa config get KEY")
		}
		v, err := cfg.Get(key)
		if err != nil {
			return NewValidationError("KEY", key, err.Error())
		}
		fmt.Fprintln(out, v)
		return nil

	case "set":
		key, value := p.Positional(1), JoinPositionalArgs(p, 2)
		if key == "" || p.PositionalCount() < 3 {
			return ErrMissingArgument("KEY VALUE", "ollapa config set KEY VALUE")
		}
		if err := config.NewPreferences(cfgPath).Set(key, value); err != nil {
			return NewValidationError(key, value, err.Error())
		}
		fmt.Fprintf(out, "%s %s = %s\n", RenderStatus("ok"), key, value)
		return nil

	case "path":
		fmt.Fprintln(out, cfgPath)
		return nil

	case "keys":
		for _, key := range config.Keys() {
			v, err := cfg.Get(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-20s %v\n", key, v)
		}
		return nil

	default:
		return NewUsageError(fmt.Sprintf("unknown config subcommand %q", sub), "ollapa config [show|get KEY|set KEY VALUE|path|keys]")
	}
}
