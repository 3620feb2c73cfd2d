package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/store/db"
	"github.com/shopspring/decimal"
)

// Config pledge config
type Config struct {
	App       App          `json:"app"`
	DB        db.Config    `json:"db"`
	Fee       Fee          `json:"fee"`
	Flash     Flash        `json:"flash"`
	Keeper    Keeper       `json:"keeper"`
	Admins    []string     `json:"admins"`
	APITokens []string     `json:"api_tokens"`
	Accounts  []Account    `json:"accounts"`
	Genesis   []Genesis    `json:"genesis"`
}

// IsAdmin check if the address is admin
func (c *Config) IsAdmin(addr common.Address) bool {
	for _, a := range c.Admins {
		if common.HexToAddress(a) == addr {
			return true
		}
	}

	return false
}

// AdminAddresses parsed admin addresses
func (c *Config) AdminAddresses() []common.Address {
	admins := make([]common.Address, 0, len(c.Admins))
	for _, a := range c.Admins {
		admins = append(admins, common.HexToAddress(a))
	}

	return admins
}

// App app config
type App struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           uint64 `json:"chain_id"`
	VerifyingContract string `json:"verifying_contract"`
	Location          string `json:"location"`
}

// Domain signing domain of the app
func (a App) Domain() Domain {
	return Domain{
		Name:              a.Name,
		Version:           a.Version,
		ChainID:           a.ChainID,
		VerifyingContract: common.HexToAddress(a.VerifyingContract),
	}
}

// Fee origination fee config, the property store value wins when set
type Fee struct {
	OriginationBps uint64 `json:"origination_bps"`
}

// Flash flash pool config
type Flash struct {
	FeeBps    uint64           `json:"fee_bps"`
	Liquidity []FlashLiquidity `json:"liquidity"`
}

// FlashLiquidity initial pool balance
type FlashLiquidity struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// Genesis allocation config, class is one of fungible, unique,
// semi-fungible and other
type Genesis struct {
	Class  string `json:"class"`
	Asset  string `json:"asset"`
	ID     uint64 `json:"id"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

// Allocation parsed allocation
func (g Genesis) Allocation() Allocation {
	amount, _ := decimal.NewFromString(g.Amount)
	return Allocation{
		Class:  ParseAssetClass(g.Class),
		Asset:  common.HexToAddress(g.Asset),
		ID:     g.ID,
		Owner:  common.HexToAddress(g.Owner),
		Amount: amount,
	}
}

// Keeper keeper worker config
type Keeper struct {
	Interval string `json:"interval"`
}

// Every parsed interval, one minute when malformed
func (k Keeper) Every() time.Duration {
	d, err := time.ParseDuration(k.Interval)
	if err != nil || d <= 0 {
		return time.Minute
	}

	return d
}

// Account programmable account, base64 blst public keys
type Account struct {
	Members   []string `json:"members"`
	Threshold int      `json:"threshold"`
}
