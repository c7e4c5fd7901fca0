package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/wg-federation/wg-federation/cmd/wg-federation/commands"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("wg-federation"),
		kong.Description("Manage a WireGuard federation HQ."),
		kong.UsageOnError(),
		commands.Vars(),
	)

	global := &commands.Global{Logger: slog.Default()}
	if err := ctx.Run(global, &cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
	}
}
