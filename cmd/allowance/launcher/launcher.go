package launcher

import (
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-allowance-ledger/flags"
)

func initApp() *cli.App {
	app := flags.NewApp()
	app.Flags = append(app.Flags, flags.CommonFlags()...)
	app.Flags = append(app.Flags, flags.LedgerFlags()...)
	app.Flags = append(app.Flags, flags.SimulateFlags()...)
	app.Action = simulate
	app.Commands = []cli.Command{
		{
			Name:   "simulate",
			Usage:  "Run a deterministic multi-epoch scenario on the fake network",
			Action: simulate,
		},
		{
			Name:   "dumpconfig",
			Usage:  "Print the effective configuration and exit",
			Action: dumpConfig,
		},
	}
	return app
}

// Launch parses the command line and runs the selected command.
func Launch(args []string) error {
	return initApp().Run(args)
}
