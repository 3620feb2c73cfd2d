package fee

import (
	"context"
	"fmt"
	"sync"

	"pledge/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/logger"
	"github.com/fox-one/pkg/property"
	"github.com/spf13/cast"
)

const (
	// OriginationFeeKey property key of the origination fee bps
	OriginationFeeKey = "origination_fee_bps"
)

// PropertyStore the part of property.Store the fee service reads and writes
type PropertyStore interface {
	Get(ctx context.Context, key string) (property.Value, error)
	Save(ctx context.Context, key string, value interface{}) error
}

type feeService struct {
	properties  PropertyStore
	permissions core.PermissionService
	defaultBps  uint64

	mux    sync.Mutex
	loaded bool
	bps    uint64
}

// New new fee service, defaultBps is used until a fee is stored
func New(properties PropertyStore, permissions core.PermissionService, defaultBps uint64) core.FeeService {
	return &feeService{
		properties:  properties,
		permissions: permissions,
		defaultBps:  defaultBps,
	}
}

func (s *feeService) OriginationFee(ctx context.Context) uint64 {
	s.mux.Lock()
	defer s.mux.Unlock()

	if !s.loaded {
		s.bps = s.defaultBps
		v, err := s.properties.Get(ctx, OriginationFeeKey)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Errorln("property.Get", OriginationFeeKey)
			return s.bps
		}

		// zero means unset, a zero fee is configured through defaultBps
		if n := v.Int64(); n > 0 {
			s.bps = cast.ToUint64(n)
		}

		s.loaded = true
	}

	return s.bps
}

func (s *feeService) SetOriginationFee(ctx context.Context, caller common.Address, bps uint64) error {
	if !s.permissions.HasRole(ctx, core.RoleFeeSetter, caller) {
		return fmt.Errorf("%w: %s can not set fees", core.ErrOperationForbidden, caller.Hex())
	}

	if bps > core.MaxOriginationFeeBps {
		return fmt.Errorf("%w: fee %d bps over %d", core.ErrInvalidAmount, bps, core.MaxOriginationFeeBps)
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if err := s.properties.Save(ctx, OriginationFeeKey, bps); err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("property.Save", OriginationFeeKey)
		return err
	}

	s.bps, s.loaded = bps, true
	return nil
}
