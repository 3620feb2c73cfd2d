package config

import (
	"pledge/core"
)

const (
	defaultName     = "pledge"
	defaultVersion  = "1"
	defaultLocation = "Local"
	defaultInterval = "1m"
)

func defaults(cfg *core.Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = defaultName
	}

	if cfg.App.Version == "" {
		cfg.App.Version = defaultVersion
	}

	if cfg.App.ChainID == 0 {
		cfg.App.ChainID = 1
	}

	if cfg.App.Location == "" {
		cfg.App.Location = defaultLocation
	}

	if cfg.Keeper.Interval == "" {
		cfg.Keeper.Interval = defaultInterval
	}

	if cfg.Fee.OriginationBps > core.MaxOriginationFeeBps {
		cfg.Fee.OriginationBps = core.MaxOriginationFeeBps
	}
}
