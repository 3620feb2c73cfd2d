package signature

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"pledge/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))

	termsTypeHash = crypto.Keccak256Hash([]byte(
		"LoanTerms(uint32 durationSecs,uint32 deadline,uint24 numInstallments,uint160 interestRate,uint256 principal,address collateralAddress,uint256 collateralId,address payableCurrency,uint160 nonce)",
	))

	termsWithItemsTypeHash = crypto.Keccak256Hash([]byte(
		"LoanTermsWithItems(uint32 durationSecs,uint32 deadline,uint24 numInstallments,uint160 interestRate,uint256 principal,address collateralAddress,bytes32 itemsHash,address payableCurrency,uint160 nonce)",
	))

	predicateTypeHash = crypto.Keccak256Hash([]byte("Predicate(bytes data,address verifier)"))
)

type signatureService struct {
	domainSeparator common.Hash
	accounts        *Accounts
}

// New new signature service bound to domain, accounts may be nil
func New(domain core.Domain, accounts *Accounts) core.SignatureService {
	if accounts == nil {
		accounts = NewAccounts()
	}

	return &signatureService{
		domainSeparator: DomainSeparator(domain),
		accounts:        accounts,
	}
}

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func uintWord(v uint64) []byte {
	return word(new(big.Int).SetUint64(v))
}

func decimalWord(d decimal.Decimal) []byte {
	return word(d.BigInt())
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

// DomainSeparator hash of the signing domain
func DomainSeparator(domain core.Domain) common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(domain.Name)),
		crypto.Keccak256([]byte(domain.Version)),
		uintWord(domain.ChainID),
		addressWord(domain.VerifyingContract),
	)
}

// TermsHash struct hash of loan terms
func TermsHash(terms core.LoanTerms) common.Hash {
	return crypto.Keccak256Hash(
		termsTypeHash.Bytes(),
		uintWord(terms.DurationSecs),
		uintWord(uint64(terms.Deadline)),
		uintWord(terms.NumInstallments),
		decimalWord(terms.InterestRate),
		decimalWord(terms.Principal),
		addressWord(terms.CollateralAddress),
		uintWord(terms.CollateralID),
		addressWord(terms.PayableCurrency),
		uintWord(terms.Nonce),
	)
}

// PredicatesHash hash of an ordered predicate list
func PredicatesHash(predicates []core.Predicate) common.Hash {
	hashes := make([][]byte, 0, len(predicates))
	for _, p := range predicates {
		hashes = append(hashes, crypto.Keccak256(
			predicateTypeHash.Bytes(),
			crypto.Keccak256(p.Data),
			addressWord(p.Verifier),
		))
	}

	return crypto.Keccak256Hash(hashes...)
}

// TermsWithItemsHash struct hash of loan terms bound to item predicates,
// the collateral id is replaced by the predicates hash
func TermsWithItemsHash(terms core.LoanTerms, predicates []core.Predicate) common.Hash {
	return crypto.Keccak256Hash(
		termsWithItemsTypeHash.Bytes(),
		uintWord(terms.DurationSecs),
		uintWord(uint64(terms.Deadline)),
		uintWord(terms.NumInstallments),
		decimalWord(terms.InterestRate),
		decimalWord(terms.Principal),
		addressWord(terms.CollateralAddress),
		PredicatesHash(predicates).Bytes(),
		addressWord(terms.PayableCurrency),
		uintWord(terms.Nonce),
	)
}

// TypedDigest keccak256("\x19\x01" ‖ domainSeparator ‖ structHash)
func TypedDigest(domainSeparator, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes())
}

func (s *signatureService) Digest(terms core.LoanTerms, predicates []core.Predicate) common.Hash {
	if len(predicates) > 0 {
		return TypedDigest(s.domainSeparator, TermsWithItemsHash(terms, predicates))
	}

	return TypedDigest(s.domainSeparator, TermsHash(terms))
}

func (s *signatureService) Recover(digest common.Hash, sig []byte) (common.Address, error) {
	return Recover(digest, sig)
}

func (s *signatureService) IsValidSignature(ctx context.Context, account common.Address, digest common.Hash, sig []byte) bool {
	return s.accounts.IsValidSignature(account, digest, sig)
}

// Recover signer of a 65 byte [R || S || V] signature, V may be 0/1 or 27/28
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", core.ErrInvalidSignature, len(sig))
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// Sign sign digest with key, V is 27/28
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}

	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
