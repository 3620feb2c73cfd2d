package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pledge/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
app:
  chain_id: 5
  verifying_contract: "0x00000000000000000000000000000000000000ff"
fee:
  origination_bps: 5000
flash:
  fee_bps: 9
keeper:
  interval: 30s
admins:
  - "0x0000000000000000000000000000000000000a00"
api_tokens:
  - secret
`

func TestLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pledge.yaml")
	require.Nil(t, os.WriteFile(file, []byte(sample), 0o600))

	var cfg core.Config
	require.Nil(t, Load(file, &cfg))

	assert.Equal(t, "pledge", cfg.App.Name)
	assert.Equal(t, "Local", cfg.App.Location)
	assert.Equal(t, uint64(5), cfg.App.Domain().ChainID)
	assert.Equal(t, common.HexToAddress("0xff"), cfg.App.Domain().VerifyingContract)
	assert.Equal(t, core.MaxOriginationFeeBps, cfg.Fee.OriginationBps)
	assert.Equal(t, uint64(9), cfg.Flash.FeeBps)
	assert.Equal(t, 30*time.Second, cfg.Keeper.Every())
	assert.True(t, cfg.IsAdmin(common.HexToAddress("0xa00")))
	assert.False(t, cfg.IsAdmin(common.HexToAddress("0xa01")))
	assert.Equal(t, []string{"secret"}, cfg.APITokens)
}
