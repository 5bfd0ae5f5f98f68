package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/sandboxd/cmd/sandboxd/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Monitor   commands.MonitorCmd   `cmd:"" help:"Poll the directory and provision sandboxes forever"`
		Provision commands.ProvisionCmd `cmd:"" help:"Reconcile a single user by username"`
		Check     commands.CheckCmd     `cmd:"" help:"Classify an email without touching the platform"`
		Debug     bool                  `help:"Enable debug mode."`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
