// Command flowllm is the CLI entry point for the engine. Usage: flowllm serve
// --config config.yaml flowllm validate config.yaml flowllm version
package main

import (
	"fmt"
	"runtime/debug"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP service adapter (or the MCP adapter over stdio with --mcp)."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the config file."`

	Config    string   `short:"c" help:"Path to YAML config file." type:"path"`
	Set       []string `help:"Dotted config override, e.g. server.http_addr=:9000 (repeatable)." placeholder:"KEY=VALUE"`
	LogLevel  string   `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string   `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("flowllm version %s\n", version())
	return nil
}

// version reports the module version embedded by the Go toolchain at
// build time, falling back to "dev" for unversioned/local builds.
func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("flowllm"),
		kong.Description("Flow execution engine: a composable operation runtime exposed over HTTP and MCP."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
