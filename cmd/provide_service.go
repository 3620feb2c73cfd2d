package cmd

import (
	"context"
	"fmt"

	"pledge/core"
	"pledge/internal/atomic"
	"pledge/pkg/id"
	"pledge/service/asset"
	"pledge/service/event"
	"pledge/service/fee"
	"pledge/service/flash"
	"pledge/service/ledger"
	"pledge/service/note"
	"pledge/service/origination"
	"pledge/service/permission"
	"pledge/service/predicate"
	"pledge/service/repayment"
	"pledge/service/rollover"
	"pledge/service/signature"
	"pledge/service/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/property"
	"github.com/fox-one/pkg/store/db"
	"github.com/sirupsen/logrus"
)

const eventBuffer = 1024

// system the in-process protocol, every component shares one executor
type system struct {
	exec        *atomic.Executor
	hub         *event.Hub
	assets      core.AssetService
	permissions core.PermissionService
	fees        core.FeeService
	ledger      core.LedgerService
	repayments  core.RepaymentService
	origination core.OriginationService
	rollovers   core.RolloverService
	flash       core.FlashService
	vaults      core.VaultService
}

// bootstrap admin granting component roles at startup, no key signs for it
var bootstrapAdmin = id.Address("bootstrap")

func provideAccounts() (*signature.Accounts, error) {
	accounts := signature.NewAccounts()
	for idx, a := range cfg.Accounts {
		members, err := signature.ParseMembers(a.Members)
		if err != nil {
			return nil, fmt.Errorf("account #%d: %w", idx, err)
		}

		addr, err := accounts.Register(members, a.Threshold)
		if err != nil {
			return nil, fmt.Errorf("account #%d: %w", idx, err)
		}

		logrus.Infoln("programmable account", addr.Hex())
	}

	return accounts, nil
}

func provideSystem(ctx context.Context, database *db.DB, properties property.Store) (*system, error) {
	accounts, err := provideAccounts()
	if err != nil {
		return nil, err
	}

	exec := atomic.New().WithDB(database)
	notes := provideNoteStore(database)
	s := &system{
		exec: exec,
		hub:  event.New(eventBuffer),
	}

	admins := append(cfg.AdminAddresses(), bootstrapAdmin)
	signatures := signature.New(cfg.App.Domain(), accounts)

	s.assets = asset.New(exec, provideAssetStore(database))
	s.permissions = permission.New(exec, admins...)
	s.fees = fee.New(properties, s.permissions, cfg.Fee.OriginationBps)
	s.ledger = ledger.New(
		exec,
		provideLedgerStore(database),
		s.assets,
		s.permissions,
		s.fees,
		note.New(exec, notes, "borrower"),
		note.New(exec, notes, "lender"),
		s.hub,
		ledger.SystemClock,
	)
	s.repayments = repayment.New(exec, s.ledger, s.assets, ledger.SystemClock)
	s.vaults = vault.New(exec, provideVaultStore(database), s.assets, "default")
	s.origination = origination.New(exec, provideApprovalStore(database), s.ledger, signatures, s.permissions, ledger.SystemClock, predicate.New(s.vaults))
	s.flash = flash.New(exec, s.assets, cfg.Flash.FeeBps)
	s.rollovers = rollover.New(exec, s.assets, s.ledger, s.repayments, s.origination, s.flash, s.fees, s.vaults, s.hub)

	restored, err := s.restore(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.bootstrap(ctx, !restored); err != nil {
		return nil, err
	}

	return s, nil
}

// restore load the stored state of every component, reports whether a
// previous run left any assets behind
func (s *system) restore(ctx context.Context) (bool, error) {
	restored, err := s.assets.Restore(ctx)
	if err != nil {
		return false, fmt.Errorf("restore assets: %w", err)
	}

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"borrower notes", s.ledger.BorrowerNotes().Restore},
		{"lender notes", s.ledger.LenderNotes().Restore},
		{"ledger", s.ledger.Restore},
		{"vaults", s.vaults.Restore},
		{"origination", s.origination.Restore},
	}

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return false, fmt.Errorf("restore %s: %w", step.name, err)
		}
	}

	return restored, nil
}

type grant struct {
	role    core.Role
	account common.Address
}

// bootstrap grants component roles, then drops the bootstrap admin. On the
// first boot it also applies the genesis allocations and funds the flash pool.
func (s *system) bootstrap(ctx context.Context, genesis bool) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		grants := []grant{
			{core.RoleOriginator, s.origination.Address()},
			{core.RoleRepayer, s.repayments.Address()},
			{core.RoleClaimer, s.repayments.Address()},
		}

		for _, admin := range cfg.AdminAddresses() {
			grants = append(grants, grant{core.RoleFeeClaimer, admin}, grant{core.RoleFeeSetter, admin})
		}

		for _, g := range grants {
			if err := s.permissions.Grant(ctx, bootstrapAdmin, g.role, g.account); err != nil {
				return err
			}
		}

		if err := s.permissions.Revoke(ctx, bootstrapAdmin, core.RoleAdmin, bootstrapAdmin); err != nil {
			return err
		}

		if !genesis {
			return nil
		}

		if err := asset.Genesis(ctx, s.assets, provideGenesis()); err != nil {
			return err
		}

		for currency, amount := range provideFlashLiquidity() {
			if err := s.assets.Mint(ctx, common.HexToAddress(currency), s.flash.Address(), amount); err != nil {
				return err
			}
		}

		return nil
	})
}
