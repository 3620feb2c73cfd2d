package request

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type key int

const (
	callerKey key = iota
)

type ContextX struct {
	context.Context
}

// NewContext context extension
func NewContext(ctx context.Context) ContextX {
	return ContextX{
		Context: ctx,
	}
}

// WithCaller context with the authenticated caller address
func (c ContextX) WithCaller(caller common.Address) context.Context {
	return context.WithValue(c, callerKey, caller)
}

// GetCaller get caller from context
func (c ContextX) GetCaller() (common.Address, bool) {
	caller, ok := c.Value(callerKey).(common.Address)
	return caller, ok
}
