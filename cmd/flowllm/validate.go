package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flowllm-go/flowllm/pkg/config"
)

// ValidateCmd validates a configuration file without starting any service
// adapter.
type ValidateCmd struct {
	Config      string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`
	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	_ = config.LoadEnv(filepath.Dir(c.Config))

	cfg, err := config.Load(c.Config)
	if err != nil {
		return c.printLoadError(err)
	}

	if c.PrintConfig {
		return c.printExpandedConfig(cfg)
	}
	c.printSuccess()
	return nil
}

func (c *ValidateCmd) printLoadError(err error) error {
	switch c.Format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"valid": false,
			"file":  c.Config,
			"error": err.Error(),
		})
	case "verbose":
		fmt.Fprintf(os.Stderr, "Configuration Load Error\n========================\n\n")
		fmt.Fprintf(os.Stderr, "File:  %s\nError: %s\n", c.Config, err.Error())
	default:
		fmt.Fprintf(os.Stderr, "%s: load error: %s\n", c.Config, err.Error())
	}
	return fmt.Errorf("config load failed")
}

func (c *ValidateCmd) printSuccess() {
	switch c.Format {
	case "json":
		json.NewEncoder(os.Stdout).Encode(map[string]any{"valid": true, "file": c.Config})
	case "verbose":
		fmt.Fprintf(os.Stdout, "Configuration Validation Successful\n====================================\n\n")
		fmt.Fprintf(os.Stdout, "File:   %s\nStatus: OK Valid\n", c.Config)
	default:
		fmt.Fprintf(os.Stdout, "%s: valid\n", c.Config)
	}
}

func (c *ValidateCmd) printExpandedConfig(cfg *config.Config) error {
	switch c.Format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	default:
		fmt.Fprintf(os.Stdout, "# Expanded configuration from: %s\n\n", c.Config)
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(cfg)
	}
}
