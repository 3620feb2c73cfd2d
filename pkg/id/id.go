package id

import (
	"crypto/md5"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	foxuuid "github.com/fox-one/pkg/uuid"
	"github.com/gofrs/uuid"
	"github.com/spf13/cast"
)

// GenTraceID new normal traceID
func GenTraceID() string {
	return foxuuid.New()
}

// TraceIDFrom derive a stable trace id from a parent trace id and a step name
func TraceIDFrom(traceID, step string) string {
	return foxuuid.Modify(traceID, step)
}

// UUIDFromString new uuid string from string
func UUIDFromString(text string) string {
	h := md5.New()
	io.WriteString(h, text)
	sum := h.Sum(nil)
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.FromBytesOrNil(sum).String()
}

// Num2Str convert uint64 to number string
func Num2Str(id uint64) string {
	return cast.ToString(id)
}

// Str2Num convert number string to uint64
func Str2Num(idStr string) uint64 {
	return cast.ToUint64(idStr)
}

// Address deterministic account address of a named component
func Address(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(name)))
}

// SubAddress deterministic account address of the n-th child of a component
func SubAddress(parent common.Address, name string, n uint64) common.Address {
	return common.BytesToAddress(crypto.Keccak256(parent.Bytes(), []byte(name), []byte(Num2Str(n))))
}
