package permission

import (
	"context"
	"fmt"

	"pledge/core"
	"pledge/internal/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/logger"
)

type roleKey struct {
	role    core.Role
	account common.Address
}

type permissionService struct {
	exec  *atomic.Executor
	roles map[roleKey]bool
}

// New new role registry, admins are granted RoleAdmin
func New(exec *atomic.Executor, admins ...common.Address) core.PermissionService {
	s := &permissionService{
		exec:  exec,
		roles: make(map[roleKey]bool),
	}

	for _, admin := range admins {
		s.roles[roleKey{role: core.RoleAdmin, account: admin}] = true
	}

	return s
}

func (s *permissionService) HasRole(ctx context.Context, role core.Role, account common.Address) bool {
	var ok bool
	_ = s.exec.View(ctx, func(ctx context.Context) error {
		ok = s.roles[roleKey{role: role, account: account}]
		return nil
	})

	return ok
}

func (s *permissionService) set(ctx context.Context, caller common.Address, role core.Role, account common.Address, granted bool) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		if !s.roles[roleKey{role: core.RoleAdmin, account: caller}] {
			return fmt.Errorf("%w: %s is not admin", core.ErrOperationForbidden, caller.Hex())
		}

		k := roleKey{role: role, account: account}
		prev := s.roles[k]
		if granted {
			s.roles[k] = true
		} else {
			delete(s.roles, k)
		}

		atomic.Record(ctx, func() {
			if prev {
				s.roles[k] = true
			} else {
				delete(s.roles, k)
			}
		})

		logger.FromContext(ctx).WithField("role", role).Infof("permission: %s %t", account.Hex(), granted)
		return nil
	})
}

func (s *permissionService) Grant(ctx context.Context, caller common.Address, role core.Role, account common.Address) error {
	return s.set(ctx, caller, role, account, true)
}

func (s *permissionService) Revoke(ctx context.Context, caller common.Address, role core.Role, account common.Address) error {
	return s.set(ctx, caller, role, account, false)
}
