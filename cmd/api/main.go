package main

import (
	"context"

	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	cli     struct {
		EnvFile string           `help:"Optional .env file." default:".env" type:"path"`
		Version kong.VersionFlag `help:"Print version."`

		Serve       ServeCmd       `cmd:"" default:"1" help:"Run the HTTP API."`
		Migrate     MigrateCmd     `cmd:"" help:"Apply database migrations and exit."`
		CreateAdmin CreateAdminCmd `cmd:"" name:"create-admin" help:"Create a staff account."`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("paie-api"),
		kong.Description("Attendance sessions and one-time code check-in."),
		kong.Vars{"version": version},
		kong.BindTo(ctx, (*context.Context)(nil)))
	globals, err := newGlobals(cli.EnvFile)
	cmd.FatalIfErrorf(err)
	cmd.FatalIfErrorf(cmd.Run(globals))
}
