package signature

import (
	"encoding/base64"
	"fmt"
	"sync"

	"pledge/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fox-one/msgpack"
	"github.com/pandodao/blst"
)

// AccountSignature threshold signature of a programmable account, bit
// i+1 of Mask marks member i as a signer
type AccountSignature struct {
	Mask      uint64 `msgpack:"m"`
	Signature []byte `msgpack:"s"`
}

// Encode msgpack encoding of the signature
func (s AccountSignature) Encode() []byte {
	b, _ := msgpack.Marshal(s)
	return b
}

// DecodeAccountSignature decode msgpack encoded signature
func DecodeAccountSignature(b []byte) (*AccountSignature, error) {
	var s AccountSignature
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, err
	}

	return &s, nil
}

type account struct {
	members   []*blst.PublicKey
	threshold int
}

// Accounts programmable accounts backed by blst threshold keys
type Accounts struct {
	mux      sync.RWMutex
	accounts map[common.Address]*account
}

// NewAccounts empty account set
func NewAccounts() *Accounts {
	return &Accounts{accounts: make(map[common.Address]*account)}
}

// AccountAddress address of the account formed by members and threshold
func AccountAddress(members []*blst.PublicKey, threshold int) common.Address {
	data := make([][]byte, 0, len(members)+1)
	for _, m := range members {
		data = append(data, m.Bytes())
	}

	data = append(data, uintWord(uint64(threshold)))
	return common.BytesToAddress(crypto.Keccak256(data...))
}

// ParseMembers decode base64 encoded blst public keys
func ParseMembers(keys []string) ([]*blst.PublicKey, error) {
	members := make([]*blst.PublicKey, 0, len(keys))
	for _, k := range keys {
		b, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("decode member %q: %w", k, err)
		}

		pub := blst.PublicKey{}
		if err := pub.FromBytes(b); err != nil {
			return nil, fmt.Errorf("parse member %q: %w", k, err)
		}

		members = append(members, &pub)
	}

	return members, nil
}

// Register add an account, returns its address
func (a *Accounts) Register(members []*blst.PublicKey, threshold int) (common.Address, error) {
	if threshold <= 0 || threshold > len(members) || len(members) > 63 {
		return common.Address{}, fmt.Errorf("%w: threshold %d of %d", core.ErrInvalidAmount, threshold, len(members))
	}

	addr := AccountAddress(members, threshold)

	a.mux.Lock()
	a.accounts[addr] = &account{members: members, threshold: threshold}
	a.mux.Unlock()

	return addr, nil
}

// IsAccount reports whether addr is a registered account
func (a *Accounts) IsAccount(addr common.Address) bool {
	a.mux.RLock()
	defer a.mux.RUnlock()

	_, ok := a.accounts[addr]
	return ok
}

// IsValidSignature verify an encoded AccountSignature over digest
func (a *Accounts) IsValidSignature(addr common.Address, digest common.Hash, sig []byte) bool {
	a.mux.RLock()
	acc, ok := a.accounts[addr]
	a.mux.RUnlock()

	if !ok {
		return false
	}

	s, err := DecodeAccountSignature(sig)
	if err != nil {
		return false
	}

	signature := blst.Signature{}
	if err := signature.FromBytes(s.Signature); err != nil {
		return false
	}

	var pubs []*blst.PublicKey
	for idx, member := range acc.members {
		if s.Mask&(0x1<<(uint64(idx)+1)) != 0 {
			pubs = append(pubs, member)
		}
	}

	return len(pubs) >= acc.threshold &&
		blst.AggregatePublicKeys(pubs).Verify(digest.Bytes(), &signature)
}

// SignAccount produce an AccountSignature from the keys of the given member indexes
func SignAccount(digest common.Hash, keys []*blst.PrivateKey, indexes []int) []byte {
	var (
		mask uint64
		sigs = make([]*blst.Signature, 0, len(keys))
	)

	for i, key := range keys {
		mask |= 0x1 << (uint64(indexes[i]) + 1)
		sigs = append(sigs, key.Sign(digest.Bytes()))
	}

	return AccountSignature{
		Mask:      mask,
		Signature: blst.AggregateSignatures(sigs).Bytes(),
	}.Encode()
}
