package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Role capability granted to an account
type Role string

const (
	// RoleAdmin grants and revokes roles
	RoleAdmin Role = "admin"
	// RoleOriginator opens loans and consumes nonces
	RoleOriginator Role = "originator"
	// RoleRepayer repays loans
	RoleRepayer Role = "repayer"
	// RoleClaimer claims defaulted loans
	RoleClaimer Role = "claimer"
	// RoleFeeClaimer withdraws collected fees
	RoleFeeClaimer Role = "fee_claimer"
	// RoleFeeSetter updates the origination fee
	RoleFeeSetter Role = "fee_setter"
)

// PermissionService role registry
type PermissionService interface {
	HasRole(ctx context.Context, role Role, account common.Address) bool
	Grant(ctx context.Context, caller common.Address, role Role, account common.Address) error
	Revoke(ctx context.Context, caller common.Address, role Role, account common.Address) error
}
