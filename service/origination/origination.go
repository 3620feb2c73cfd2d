package origination

import (
	"context"
	"fmt"

	"pledge/core"
	"pledge/internal/atomic"
	"pledge/pkg/id"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/logger"
	"github.com/fox-one/pkg/store/db"
	"github.com/sirupsen/logrus"
)

// Clock unix seconds source
type Clock func() int64

type approvalKey struct {
	owner  common.Address
	signer common.Address
}

type originator struct {
	address     common.Address
	exec        *atomic.Executor
	store       core.ApprovalStore
	ledger      core.LedgerService
	signatures  core.SignatureService
	permissions core.PermissionService
	now         Clock

	verifiers map[common.Address]core.PredicateVerifier
	allowed   map[common.Address]bool
	approvals map[approvalKey]bool
}

// New new origination service. The service address must hold the
// originator role on the ledger. verifiers are the known predicate
// verifiers, each must be allowed by an admin before use. Approvals and
// allowed verifiers are kept in memory only when store is nil.
func New(
	exec *atomic.Executor,
	store core.ApprovalStore,
	ledger core.LedgerService,
	signatures core.SignatureService,
	permissions core.PermissionService,
	clock Clock,
	verifiers ...core.PredicateVerifier,
) core.OriginationService {
	s := &originator{
		address:     id.Address("origination"),
		exec:        exec,
		store:       store,
		ledger:      ledger,
		signatures:  signatures,
		permissions: permissions,
		now:         clock,
		verifiers:   make(map[common.Address]core.PredicateVerifier),
		allowed:     make(map[common.Address]bool),
		approvals:   make(map[approvalKey]bool),
	}

	for _, v := range verifiers {
		s.verifiers[v.Address()] = v
	}

	return s
}

func (s *originator) Address() common.Address {
	return s.address
}

// persist queue the pair's final state, allowed verifiers are stored as
// approvals owned by the service address
func (s *originator) persist(ctx context.Context, owner, signer common.Address, approved func() bool) {
	if s.store == nil {
		return
	}

	atomic.Persist(ctx, fmt.Sprintf("approval:%s:%s", owner.Hex(), signer.Hex()), func(tx *db.DB) error {
		return s.store.SaveApproval(ctx, tx, owner, signer, approved())
	})
}

func (s *originator) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	approvals, err := s.store.ListApprovals(ctx)
	if err != nil {
		return err
	}

	return s.exec.Run(ctx, func(ctx context.Context) error {
		for _, a := range approvals {
			owner, signer := common.HexToAddress(a.Owner), common.HexToAddress(a.Signer)
			if owner == s.address {
				s.allowed[signer] = true
				continue
			}

			s.approvals[approvalKey{owner: owner, signer: signer}] = true
		}

		logger.FromContext(ctx).Infof("origination: %d approvals restored", len(approvals))
		return nil
	})
}

func (s *originator) Approve(ctx context.Context, owner, signer common.Address, approved bool) error {
	if owner == signer {
		return fmt.Errorf("%w: %s", core.ErrSelfApprove, owner.Hex())
	}

	return s.exec.Run(ctx, func(ctx context.Context) error {
		k := approvalKey{owner: owner, signer: signer}
		prev := s.approvals[k]
		if approved {
			s.approvals[k] = true
		} else {
			delete(s.approvals, k)
		}

		atomic.Record(ctx, func() {
			if prev {
				s.approvals[k] = true
			} else {
				delete(s.approvals, k)
			}
		})
		s.persist(ctx, owner, signer, func() bool { return s.approvals[k] })

		logger.FromContext(ctx).WithFields(logrus.Fields{
			"owner":    owner.Hex(),
			"signer":   signer.Hex(),
			"approved": approved,
		}).Infoln("origination: approval set")
		return nil
	})
}

func (s *originator) IsApproved(ctx context.Context, owner, signer common.Address) bool {
	var ok bool
	_ = s.exec.View(ctx, func(ctx context.Context) error {
		ok = s.approvals[approvalKey{owner: owner, signer: signer}]
		return nil
	})

	return ok
}

func (s *originator) IsSelfOrApproved(ctx context.Context, target, signer common.Address) bool {
	return target == signer || s.IsApproved(ctx, target, signer)
}

func (s *originator) SetAllowedVerifier(ctx context.Context, caller, verifier common.Address, allowed bool) error {
	if !s.permissions.HasRole(ctx, core.RoleAdmin, caller) {
		return fmt.Errorf("%w: %s is not admin", core.ErrOperationForbidden, caller.Hex())
	}

	if _, ok := s.verifiers[verifier]; !ok && allowed {
		return fmt.Errorf("%w: unknown verifier %s", core.ErrInvalidVerifier, verifier.Hex())
	}

	return s.exec.Run(ctx, func(ctx context.Context) error {
		prev := s.allowed[verifier]
		s.allowed[verifier] = allowed
		atomic.Record(ctx, func() { s.allowed[verifier] = prev })
		s.persist(ctx, s.address, verifier, func() bool { return s.allowed[verifier] })
		return nil
	})
}

func (s *originator) IsAllowedVerifier(ctx context.Context, verifier common.Address) bool {
	var ok bool
	_ = s.exec.View(ctx, func(ctx context.Context) error {
		ok = s.allowed[verifier]
		return nil
	})

	return ok
}

// resolveSigner the address whose nonce sig consumes. The caller picks its
// side and sig must stand for the other one: an externally owned key of the
// counterparty or of its delegate, or a signature the counterparty's
// programmable account accepts
func (s *originator) resolveSigner(ctx context.Context, caller common.Address, digest common.Hash, sig []byte, borrower, lender common.Address) (common.Address, error) {
	var counterparty common.Address
	switch {
	case s.IsSelfOrApproved(ctx, borrower, caller):
		counterparty = lender
	case s.IsSelfOrApproved(ctx, lender, caller):
		counterparty = borrower
	default:
		return common.Address{}, fmt.Errorf("%w: %s", core.ErrCallerNotParticipant, caller.Hex())
	}

	signer, err := s.signatures.Recover(digest, sig)
	if err == nil {
		if signer == caller {
			return common.Address{}, fmt.Errorf("%w: %s", core.ErrApprovedOwnLoan, caller.Hex())
		}

		if s.IsSelfOrApproved(ctx, counterparty, signer) {
			return signer, nil
		}

		err = fmt.Errorf("%w: %s does not sign for %s", core.ErrInvalidSignature, signer.Hex(), counterparty.Hex())
	}

	// a recovered key that stands for nobody may still be accepted by the account
	if s.signatures.IsValidSignature(ctx, counterparty, digest, sig) {
		if counterparty == caller {
			return common.Address{}, fmt.Errorf("%w: %s", core.ErrApprovedOwnLoan, caller.Hex())
		}

		return counterparty, nil
	}

	return common.Address{}, err
}

func (s *originator) verifyPredicates(ctx context.Context, collateral core.CollateralKey, predicates []core.Predicate) error {
	if len(predicates) == 0 {
		return fmt.Errorf("%w: no predicates", core.ErrPredicateFailed)
	}

	for idx, p := range predicates {
		verifier, ok := s.verifiers[p.Verifier]
		if !ok || !s.allowed[p.Verifier] {
			return fmt.Errorf("%w: %s", core.ErrInvalidVerifier, p.Verifier.Hex())
		}

		passed, err := verifier.Verify(ctx, p.Data, collateral)
		if err != nil {
			return fmt.Errorf("%w: predicate %d: %v", core.ErrPredicateFailed, idx, err)
		}

		if !passed {
			return fmt.Errorf("%w: predicate %d on %s", core.ErrPredicateFailed, idx, collateral)
		}
	}

	return nil
}

func (s *originator) initialize(
	ctx context.Context,
	caller common.Address,
	terms core.LoanTerms,
	borrower, lender common.Address,
	sig []byte,
	predicates []core.Predicate,
	withItems bool,
) (uint64, error) {
	var loanID uint64

	err := s.exec.Run(ctx, func(ctx context.Context) error {
		log := logger.FromContext(ctx).WithFields(logrus.Fields{
			"caller":   caller.Hex(),
			"borrower": borrower.Hex(),
			"lender":   lender.Hex(),
		})

		if err := terms.Validate(); err != nil {
			return err
		}

		if borrower == lender {
			return fmt.Errorf("%w: %s", core.ErrSelfApproval, borrower.Hex())
		}

		if s.now() > terms.Deadline {
			return fmt.Errorf("%w: deadline %d", core.ErrSignatureExpired, terms.Deadline)
		}

		digest := s.signatures.Digest(terms, predicates)
		signer, err := s.resolveSigner(ctx, caller, digest, sig, borrower, lender)
		if err != nil {
			log.WithError(err).Debugln("origination: resolve signer")
			return err
		}

		if withItems {
			if err := s.verifyPredicates(ctx, terms.Collateral(), predicates); err != nil {
				return err
			}
		}

		if err := s.ledger.ConsumeNonce(ctx, s.address, signer, terms.Nonce); err != nil {
			return err
		}

		if loanID, err = s.ledger.OpenLoan(ctx, s.address, lender, borrower, terms); err != nil {
			return err
		}

		log.WithField("loan", loanID).Infoln("origination: loan initialized, signed by", signer.Hex())
		return nil
	})

	if err != nil {
		return 0, err
	}

	return loanID, nil
}

func (s *originator) InitializeLoan(ctx context.Context, caller common.Address, terms core.LoanTerms, borrower, lender common.Address, sig []byte) (uint64, error) {
	return s.initialize(ctx, caller, terms, borrower, lender, sig, nil, false)
}

func (s *originator) InitializeLoanWithItems(
	ctx context.Context,
	caller common.Address,
	terms core.LoanTerms,
	borrower, lender common.Address,
	sig []byte,
	predicates []core.Predicate,
) (uint64, error) {
	return s.initialize(ctx, caller, terms, borrower, lender, sig, predicates, true)
}
