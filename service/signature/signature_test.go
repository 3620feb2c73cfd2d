package signature

import (
	"context"
	"testing"

	"pledge/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pandodao/blst"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var domain = core.Domain{
	Name:              "OriginationController",
	Version:           "2",
	ChainID:           1,
	VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000000ff"),
}

func sampleTerms() core.LoanTerms {
	return core.LoanTerms{
		Principal:         decimal.NewFromInt(1000),
		InterestRate:      decimal.New(500, 18),
		DurationSecs:      86400,
		CollateralAddress: common.HexToAddress("0x00000000000000000000000000000000000000b1"),
		CollateralID:      1,
		PayableCurrency:   common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Deadline:          1_700_000_000,
		Nonce:             1,
	}
}

func TestSignRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.Nil(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	s := New(domain, nil)
	digest := s.Digest(sampleTerms(), nil)

	sig, err := Sign(digest, key)
	require.Nil(t, err)
	assert.True(t, sig[64] == 27 || sig[64] == 28)

	got, err := s.Recover(digest, sig)
	require.Nil(t, err)
	assert.Equal(t, signer, got)

	// raw 0/1 recovery ids are accepted as well
	raw := append([]byte{}, sig...)
	raw[64] -= 27
	got, err = s.Recover(digest, raw)
	require.Nil(t, err)
	assert.Equal(t, signer, got)

	_, err = s.Recover(digest, sig[:64])
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestDigestBinding(t *testing.T) {
	s := New(domain, nil)
	terms := sampleTerms()
	base := s.Digest(terms, nil)

	other := terms
	other.Nonce = 2
	assert.NotEqual(t, base, s.Digest(other, nil))

	other = terms
	other.Principal = decimal.NewFromInt(1001)
	assert.NotEqual(t, base, s.Digest(other, nil))

	d2 := domain
	d2.ChainID = 5
	assert.NotEqual(t, base, New(d2, nil).Digest(terms, nil))

	predicates := []core.Predicate{{Verifier: common.HexToAddress("0x0e"), Data: []byte{1, 2, 3}}}
	withItems := s.Digest(terms, predicates)
	assert.NotEqual(t, base, withItems)

	predicates[0].Data = []byte{1, 2, 4}
	assert.NotEqual(t, withItems, s.Digest(terms, predicates))
}

func TestAccountSignature(t *testing.T) {
	ctx := context.Background()
	keys := []*blst.PrivateKey{blst.GenerateKey(), blst.GenerateKey(), blst.GenerateKey()}
	members := make([]*blst.PublicKey, len(keys))
	for i, k := range keys {
		members[i] = k.PublicKey()
	}

	accounts := NewAccounts()
	addr, err := accounts.Register(members, 2)
	require.Nil(t, err)
	assert.True(t, accounts.IsAccount(addr))
	assert.Equal(t, addr, AccountAddress(members, 2))

	s := New(domain, accounts)
	digest := s.Digest(sampleTerms(), nil)

	two := SignAccount(digest, []*blst.PrivateKey{keys[0], keys[2]}, []int{0, 2})
	assert.True(t, s.IsValidSignature(ctx, addr, digest, two))

	one := SignAccount(digest, []*blst.PrivateKey{keys[1]}, []int{1})
	assert.False(t, s.IsValidSignature(ctx, addr, digest, one))

	// mask claims a member that did not sign
	wrongMask := SignAccount(digest, []*blst.PrivateKey{keys[0], keys[2]}, []int{0, 1})
	assert.False(t, s.IsValidSignature(ctx, addr, digest, wrongMask))

	other := sampleTerms()
	other.Nonce = 9
	assert.False(t, s.IsValidSignature(ctx, addr, s.Digest(other, nil), two))

	assert.False(t, s.IsValidSignature(ctx, common.HexToAddress("0x01"), digest, two))
	assert.False(t, s.IsValidSignature(ctx, addr, digest, []byte{0xc1}))

	_, err = accounts.Register(members, 4)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}
