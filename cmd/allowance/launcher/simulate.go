package launcher

import (
	"io/ioutil"
	"math/big"
	"math/rand"
	"path/filepath"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-allowance-ledger/inter"
	"github.com/rony4d/go-allowance-ledger/ledger"
	"github.com/rony4d/go-allowance-ledger/registry"
)

// simulate runs a deterministic multi-epoch scenario against an engine
// wired to the in-memory collaborators. Each epoch mints one entitlement
// per holder, lets investors buy in, and drains every position before
// moving on, so the conservation summary at the end must always close.
func simulate(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Node.Logging); err != nil {
		return err
	}
	log := logrus.WithField("module", "simulate")
	log.WithFields(logrus.Fields{
		"rules":     cfg.Ledger.Rules.String(),
		"holders":   cfg.Simulate.Holders,
		"investors": cfg.Simulate.Investors,
		"epochs":    cfg.Simulate.Epochs,
		"seed":      cfg.Simulate.Seed,
	}).Info("starting scenario")

	chain := new(registry.FakeChain)
	reg := registry.NewMemoryRegistry(chain)
	credits := registry.NewMemoryCreditLedger()
	vault := registry.NewMemoryVault()

	eng, err := ledger.New(cfg.EngineConfig(), chain, reg, credits, vault)
	if err != nil {
		return err
	}
	defer eng.Close()

	rng := rand.New(rand.NewSource(cfg.Simulate.Seed))
	length := cfg.Ledger.Rules.EpochLength

	holders := make([]common.Address, cfg.Simulate.Holders)
	for i := range holders {
		holders[i] = common.BigToAddress(big.NewInt(int64(i) + 1))
	}
	investors := make([]common.Address, cfg.Simulate.Investors)
	for i := range investors {
		investors[i] = common.BigToAddress(big.NewInt(int64(i) + 1000))
		vault.Fund(investors[i], cfg.Simulate.InvestorFunds())
	}

	for e := 0; e < cfg.Simulate.Epochs; e++ {
		epoch := idx.Epoch(e)
		base := idx.Block(uint64(e) * uint64(length))
		chain.SetHeight(base)

		ids := make([]inter.EntitlementID, len(holders))
		for i, h := range holders {
			ids[i] = reg.MintEntitlement(h)
		}

		// Investors buy at the epoch's first block, spreading a random
		// even deposit over the whole epoch. The deposit is budgeted
		// against the investor's free balance and the epochs still to
		// come, so the scenario never runs out of funds.
		for _, inv := range investors {
			budget := vault.BalanceOf(inv).Uint64() / uint64(cfg.Simulate.Epochs-e)
			maxRate := budget / uint64(length)
			if maxRate == 0 {
				log.WithFields(logrus.Fields{
					"epoch":    epoch,
					"investor": inv.Hex(),
				}).Warn("budget too small to buy, skipping")
				continue
			}
			if maxRate > 100 {
				maxRate = 100
			}
			deposit := new(big.Int).SetUint64(uint64(length) * (1 + uint64(rng.Int63n(int64(maxRate)))))
			rate, refund, err := eng.Buy(inv, epoch, deposit)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"epoch":    epoch,
				"investor": inv.Hex(),
				"rate":     rate,
				"refund":   refund,
			}).Info("bought")
		}

		// Half the holders claim part of their window mid-epoch; the
		// rest sleep and withdraw after the epoch closes.
		chain.SetHeight(base + length/2)
		for i, h := range holders {
			if rng.Intn(2) == 0 {
				continue
			}
			remaining := length - length/2
			duration := idx.Block(1 + rng.Int63n(int64(remaining)))
			amount, err := eng.Claim(h, ids[i], h, duration)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"epoch":  epoch,
				"holder": h.Hex(),
				"amount": amount,
			}).Info("claimed")
		}

		// The epoch closes: every investor settles their full window and
		// every entitlement's leftover is withdrawn.
		chain.SetHeight(base + length)
		for _, inv := range investors {
			amountQ64, err := eng.Settle(inv, epoch)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"epoch":     epoch,
				"investor":  inv.Hex(),
				"amountQ64": amountQ64,
			}).Info("settled")
		}
		for i, h := range holders {
			amount, valueQ64, err := eng.Withdraw(h, ids[i])
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"epoch":    epoch,
				"holder":   h.Hex(),
				"amount":   amount,
				"valueQ64": valueQ64,
			}).Info("withdrawn")
		}

		rec, err := eng.EpochRecordOf(epoch)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"epoch":     epoch,
			"supply":    rec.TotalSupply,
			"claimed":   rec.SupplyClaimed,
			"withdrawn": rec.SupplyWithdrawn,
			"invested":  rec.ValueInvested,
			"settled":   rec.ValueSettled,
		}).Info("epoch closed")
	}

	// Persist the final engine state so a later run can be compared
	// against it.
	raw, err := eng.Snapshot().Bytes()
	if err != nil {
		return err
	}
	snapPath := filepath.Join(cfg.Node.DataDir, "ledger.snap")
	if err := ioutil.WriteFile(snapPath, raw, 0o644); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"minted":   credits.TotalMinted(),
		"burns":    credits.TotalBurnTracked(),
		"escrow":   vault.Escrowed(),
		"epochs":   cfg.Simulate.Epochs,
		"holders":  cfg.Simulate.Holders,
		"snapshot": snapPath,
	}).Info("scenario finished")
	return nil
}
