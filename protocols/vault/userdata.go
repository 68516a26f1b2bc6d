package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrMalformedUserData is returned when a payload can not be encoded or
// decoded. It is a pool rejection: an engine receiving such a payload refuses
// the interaction.
var ErrMalformedUserData = fmt.Errorf("%w: malformed user data", ErrPoolInteractionRejected)

// JoinKind selects the semantics of a join. The numeric values are part of
// the wire format.
type JoinKind uint8

const (
	JoinInit JoinKind = iota
	JoinExactTokensInForSharesOut
	JoinTokenInForExactSharesOut
	JoinAllTokensInForExactSharesOut
)

func (k JoinKind) String() string {
	switch k {
	case JoinInit:
		return "INIT"
	case JoinExactTokensInForSharesOut:
		return "EXACT_TOKENS_IN_FOR_BPT_OUT"
	case JoinTokenInForExactSharesOut:
		return "TOKEN_IN_FOR_EXACT_BPT_OUT"
	case JoinAllTokensInForExactSharesOut:
		return "ALL_TOKENS_IN_FOR_EXACT_BPT_OUT"
	default:
		return fmt.Sprintf("JOIN_KIND(%d)", uint8(k))
	}
}

// ExitKind selects the semantics of an exit. The numeric values are part of
// the wire format.
type ExitKind uint8

const (
	ExitExactSharesInForOneTokenOut ExitKind = iota
	ExitExactSharesInForTokensOut
	ExitSharesInForExactTokensOut
)

func (k ExitKind) String() string {
	switch k {
	case ExitExactSharesInForOneTokenOut:
		return "EXACT_BPT_IN_FOR_ONE_TOKEN_OUT"
	case ExitExactSharesInForTokensOut:
		return "EXACT_BPT_IN_FOR_TOKENS_OUT"
	case ExitSharesInForExactTokensOut:
		return "BPT_IN_FOR_EXACT_TOKENS_OUT"
	default:
		return fmt.Sprintf("EXIT_KIND(%d)", uint8(k))
	}
}

// JoinData is the decoded form of a join payload. The set of implementations
// is closed.
type JoinData interface {
	Kind() JoinKind
	isJoinData()
}

// ExitData is the decoded form of an exit payload. The set of implementations
// is closed.
type ExitData interface {
	Kind() ExitKind
	isExitData()
}

// InitJoin seeds an empty pool.
type InitJoin struct {
	AmountsIn []*big.Int
}

// ExactTokensInJoin deposits exactly AmountsIn for at least MinSharesOut.
type ExactTokensInJoin struct {
	AmountsIn    []*big.Int
	MinSharesOut *big.Int
}

// TokenInForExactSharesJoin deposits a single token for exactly SharesOut.
type TokenInForExactSharesJoin struct {
	SharesOut  *big.Int
	TokenIndex uint64
}

// AllTokensInForExactSharesJoin deposits every token proportionally for
// exactly SharesOut.
type AllTokensInForExactSharesJoin struct {
	SharesOut *big.Int
}

// ExactSharesInForOneTokenExit burns exactly SharesIn for a single token.
type ExactSharesInForOneTokenExit struct {
	SharesIn   *big.Int
	TokenIndex uint64
}

// ExactSharesInForTokensExit burns exactly SharesIn for every token
// proportionally.
type ExactSharesInForTokensExit struct {
	SharesIn *big.Int
}

// SharesInForExactTokensExit withdraws exactly AmountsOut for at most
// MaxSharesIn.
type SharesInForExactTokensExit struct {
	AmountsOut  []*big.Int
	MaxSharesIn *big.Int
}

func (InitJoin) Kind() JoinKind                      { return JoinInit }
func (ExactTokensInJoin) Kind() JoinKind             { return JoinExactTokensInForSharesOut }
func (TokenInForExactSharesJoin) Kind() JoinKind     { return JoinTokenInForExactSharesOut }
func (AllTokensInForExactSharesJoin) Kind() JoinKind { return JoinAllTokensInForExactSharesOut }

func (InitJoin) isJoinData()                      {}
func (ExactTokensInJoin) isJoinData()             {}
func (TokenInForExactSharesJoin) isJoinData()     {}
func (AllTokensInForExactSharesJoin) isJoinData() {}

func (ExactSharesInForOneTokenExit) Kind() ExitKind { return ExitExactSharesInForOneTokenOut }
func (ExactSharesInForTokensExit) Kind() ExitKind   { return ExitExactSharesInForTokensOut }
func (SharesInForExactTokensExit) Kind() ExitKind   { return ExitSharesInForExactTokensOut }

func (ExactSharesInForOneTokenExit) isExitData() {}
func (ExactSharesInForTokensExit) isExitData()   {}
func (SharesInForExactTokensExit) isExitData()   {}

var (
	uint256Type      = mustType("uint256")
	uint256SliceType = mustType("uint256[]")

	joinLayouts = map[JoinKind]abi.Arguments{
		JoinInit:                         arguments(uint256Type, uint256SliceType),
		JoinExactTokensInForSharesOut:    arguments(uint256Type, uint256SliceType, uint256Type),
		JoinTokenInForExactSharesOut:     arguments(uint256Type, uint256Type, uint256Type),
		JoinAllTokensInForExactSharesOut: arguments(uint256Type, uint256Type),
	}

	exitLayouts = map[ExitKind]abi.Arguments{
		ExitExactSharesInForOneTokenOut: arguments(uint256Type, uint256Type, uint256Type),
		ExitExactSharesInForTokensOut:   arguments(uint256Type, uint256Type),
		ExitSharesInForExactTokensOut:   arguments(uint256Type, uint256SliceType, uint256Type),
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func arguments(types ...abi.Type) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: t}
	}
	return args
}

// EncodeJoin ABI-encodes a join payload as (uint256 kind, ...fields).
func EncodeJoin(d JoinData) ([]byte, error) {
	var fields []any
	switch d := d.(type) {
	case InitJoin:
		amounts, err := uintSlice(d.AmountsIn)
		if err != nil {
			return nil, err
		}
		fields = []any{amounts}
	case ExactTokensInJoin:
		amounts, err := uintSlice(d.AmountsIn)
		if err != nil {
			return nil, err
		}
		minOut, err := uintValue(d.MinSharesOut)
		if err != nil {
			return nil, err
		}
		fields = []any{amounts, minOut}
	case TokenInForExactSharesJoin:
		sharesOut, err := uintValue(d.SharesOut)
		if err != nil {
			return nil, err
		}
		fields = []any{sharesOut, new(big.Int).SetUint64(d.TokenIndex)}
	case AllTokensInForExactSharesJoin:
		sharesOut, err := uintValue(d.SharesOut)
		if err != nil {
			return nil, err
		}
		fields = []any{sharesOut}
	default:
		return nil, fmt.Errorf("%w: unsupported join data %T", ErrMalformedUserData, d)
	}
	return pack(joinLayouts[d.Kind()], uint8(d.Kind()), fields)
}

// EncodeExit ABI-encodes an exit payload as (uint256 kind, ...fields).
func EncodeExit(d ExitData) ([]byte, error) {
	var fields []any
	switch d := d.(type) {
	case ExactSharesInForOneTokenExit:
		sharesIn, err := uintValue(d.SharesIn)
		if err != nil {
			return nil, err
		}
		fields = []any{sharesIn, new(big.Int).SetUint64(d.TokenIndex)}
	case ExactSharesInForTokensExit:
		sharesIn, err := uintValue(d.SharesIn)
		if err != nil {
			return nil, err
		}
		fields = []any{sharesIn}
	case SharesInForExactTokensExit:
		amounts, err := uintSlice(d.AmountsOut)
		if err != nil {
			return nil, err
		}
		maxIn, err := uintValue(d.MaxSharesIn)
		if err != nil {
			return nil, err
		}
		fields = []any{amounts, maxIn}
	default:
		return nil, fmt.Errorf("%w: unsupported exit data %T", ErrMalformedUserData, d)
	}
	return pack(exitLayouts[d.Kind()], uint8(d.Kind()), fields)
}

// DecodeJoin parses a join payload produced by EncodeJoin or by any other
// encoder of the same layout.
func DecodeJoin(data []byte) (JoinData, error) {
	kind, err := readKind(data, uint64(JoinAllTokensInForExactSharesOut))
	if err != nil {
		return nil, err
	}
	k := JoinKind(kind)
	vals, err := joinLayouts[k].Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedUserData, k, err)
	}

	switch k {
	case JoinInit:
		return InitJoin{AmountsIn: vals[1].([]*big.Int)}, nil
	case JoinExactTokensInForSharesOut:
		return ExactTokensInJoin{AmountsIn: vals[1].([]*big.Int), MinSharesOut: vals[2].(*big.Int)}, nil
	case JoinTokenInForExactSharesOut:
		idx, err := readIndex(vals[2])
		if err != nil {
			return nil, err
		}
		return TokenInForExactSharesJoin{SharesOut: vals[1].(*big.Int), TokenIndex: idx}, nil
	default:
		return AllTokensInForExactSharesJoin{SharesOut: vals[1].(*big.Int)}, nil
	}
}

// DecodeExit parses an exit payload produced by EncodeExit or by any other
// encoder of the same layout.
func DecodeExit(data []byte) (ExitData, error) {
	kind, err := readKind(data, uint64(ExitSharesInForExactTokensOut))
	if err != nil {
		return nil, err
	}
	k := ExitKind(kind)
	vals, err := exitLayouts[k].Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedUserData, k, err)
	}

	switch k {
	case ExitExactSharesInForOneTokenOut:
		idx, err := readIndex(vals[2])
		if err != nil {
			return nil, err
		}
		return ExactSharesInForOneTokenExit{SharesIn: vals[1].(*big.Int), TokenIndex: idx}, nil
	case ExitExactSharesInForTokensOut:
		return ExactSharesInForTokensExit{SharesIn: vals[1].(*big.Int)}, nil
	default:
		return SharesInForExactTokensExit{AmountsOut: vals[1].([]*big.Int), MaxSharesIn: vals[2].(*big.Int)}, nil
	}
}

func pack(layout abi.Arguments, kind uint8, fields []any) ([]byte, error) {
	vals := append([]any{new(big.Int).SetUint64(uint64(kind))}, fields...)
	data, err := layout.Pack(vals...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUserData, err)
	}
	return data, nil
}

func readKind(data []byte, maxKind uint64) (uint64, error) {
	if len(data) < 32 {
		return 0, fmt.Errorf("%w: payload is %d bytes, want at least 32", ErrMalformedUserData, len(data))
	}
	kind := new(big.Int).SetBytes(data[:32])
	if !kind.IsUint64() || kind.Uint64() > maxKind {
		return 0, fmt.Errorf("%w: unknown kind %s", ErrMalformedUserData, kind)
	}
	return kind.Uint64(), nil
}

func readIndex(v any) (uint64, error) {
	idx := v.(*big.Int)
	if !idx.IsUint64() {
		return 0, fmt.Errorf("%w: token index %s out of range", ErrMalformedUserData, idx)
	}
	return idx.Uint64(), nil
}

// uintValue maps nil to zero and rejects negative values, which the ABI
// would otherwise encode as their two's complement.
func uintValue(v *big.Int) (*big.Int, error) {
	if v == nil {
		return new(big.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount %s", ErrMalformedUserData, v)
	}
	return v, nil
}

func uintSlice(vs []*big.Int) ([]*big.Int, error) {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		u, err := uintValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}
