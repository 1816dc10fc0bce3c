package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// LedgerFlags covers the economic configuration of the ledger itself.

func LedgerFlags() []cli.Flag {
	return []cli.Flag{
		cli.BoolFlag{
			Name:  "fakenet",
			Usage: "Run with the accelerated fake-network rules (short epochs)",
		},
		cli.StringFlag{
			Name:  "preset",
			Usage: "Named configuration preset (default|fake|stress)",
		},
		cli.Uint64Flag{
			Name:  "epoch.length",
			Usage: "Number of blocks per epoch (must be greater than 1)",
		},
		cli.Uint64Flag{
			Name:  "curve.units",
			Usage: "Flat issuance curve: credit units per entitlement per epoch",
		},
		cli.StringFlag{
			Name:  "admin",
			Usage: "Hex address of the ledger administrator",
		},
	}
}

// SimulateFlags isolates the knobs of the fake-network scenario driver.
func SimulateFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "sim.holders",
			Usage: "Number of entitlement holders in the scenario",
			Value: 3,
		},
		cli.IntFlag{
			Name:  "sim.investors",
			Usage: "Number of investors in the scenario",
			Value: 2,
		},
		cli.IntFlag{
			Name:  "sim.epochs",
			Usage: "Number of epochs to run the scenario for",
			Value: 3,
		},
		cli.Int64Flag{
			Name:  "sim.seed",
			Usage: "Seed of the deterministic scenario randomness",
			Value: 42,
		},
		cli.Uint64Flag{
			Name:  "sim.funds",
			Usage: "Free value each investor starts with",
			Value: 1000000,
		},
	}
}
