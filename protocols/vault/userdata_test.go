package vault

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func word(v uint64) string {
	return strings.Repeat("0", 48) + hexUint64(v)
}

func hexUint64(v uint64) string {
	b := new(big.Int).SetUint64(v).Bytes()
	s := hex.EncodeToString(b)
	return strings.Repeat("0", 16-len(s)) + s
}

func TestEncodeJoin(t *testing.T) {
	t.Run("ExactTokensIn_Layout", func(t *testing.T) {
		data, err := EncodeJoin(ExactTokensInJoin{
			AmountsIn:    []*big.Int{big.NewInt(100), big.NewInt(0)},
			MinSharesOut: big.NewInt(1),
		})
		require.NoError(t, err)

		// kind, offset of amountsIn, minSharesOut, len(amountsIn), amountsIn...
		want := word(1) + word(0x60) + word(1) + word(2) + word(100) + word(0)
		assert.Equal(t, want, hex.EncodeToString(data))
	})

	t.Run("NilAmountsAreZero", func(t *testing.T) {
		withNil, err := EncodeJoin(ExactTokensInJoin{AmountsIn: []*big.Int{nil, big.NewInt(5)}})
		require.NoError(t, err)
		explicit, err := EncodeJoin(ExactTokensInJoin{AmountsIn: []*big.Int{big.NewInt(0), big.NewInt(5)}, MinSharesOut: big.NewInt(0)})
		require.NoError(t, err)
		assert.Equal(t, explicit, withNil)
	})

	t.Run("RejectsNegative", func(t *testing.T) {
		_, err := EncodeJoin(ExactTokensInJoin{AmountsIn: []*big.Int{big.NewInt(-1), big.NewInt(0)}})
		assert.ErrorIs(t, err, ErrMalformedUserData)
		assert.ErrorIs(t, err, ErrPoolInteractionRejected)
	})
}

func TestEncodeExit(t *testing.T) {
	data, err := EncodeExit(ExactSharesInForOneTokenExit{SharesIn: big.NewInt(10), TokenIndex: 0})
	require.NoError(t, err)

	want := word(0) + word(10) + word(0)
	assert.Equal(t, want, hex.EncodeToString(data))
}

func TestUserDataRoundTrip(t *testing.T) {
	joins := []JoinData{
		InitJoin{AmountsIn: []*big.Int{big.NewInt(1000), big.NewInt(2000)}},
		ExactTokensInJoin{AmountsIn: []*big.Int{big.NewInt(7), big.NewInt(5)}, MinSharesOut: big.NewInt(3)},
		TokenInForExactSharesJoin{SharesOut: big.NewInt(9), TokenIndex: 1},
		AllTokensInForExactSharesJoin{SharesOut: big.NewInt(11)},
	}
	for _, j := range joins {
		t.Run(j.Kind().String(), func(t *testing.T) {
			data, err := EncodeJoin(j)
			require.NoError(t, err)
			got, err := DecodeJoin(data)
			require.NoError(t, err)
			assert.Equal(t, j, got)
		})
	}

	exits := []ExitData{
		ExactSharesInForOneTokenExit{SharesIn: big.NewInt(10), TokenIndex: 1},
		ExactSharesInForTokensExit{SharesIn: big.NewInt(12)},
		SharesInForExactTokensExit{AmountsOut: []*big.Int{big.NewInt(1), big.NewInt(2)}, MaxSharesIn: big.NewInt(4)},
	}
	for _, e := range exits {
		t.Run(e.Kind().String(), func(t *testing.T) {
			data, err := EncodeExit(e)
			require.NoError(t, err)
			got, err := DecodeExit(data)
			require.NoError(t, err)
			assert.Equal(t, e, got)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"Empty", ""},
		{"ShortKind", "01"},
		{"UnknownKind", word(9)},
		{"TruncatedFields", word(2) + word(0x60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := hex.DecodeString(tt.data)
			require.NoError(t, err)

			_, err = DecodeJoin(data)
			assert.ErrorIs(t, err, ErrMalformedUserData)
			_, err = DecodeExit(data)
			assert.ErrorIs(t, err, ErrMalformedUserData)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "EXACT_TOKENS_IN_FOR_BPT_OUT", JoinExactTokensInForSharesOut.String())
	assert.Equal(t, "EXACT_BPT_IN_FOR_ONE_TOKEN_OUT", ExitExactSharesInForOneTokenOut.String())
	assert.Equal(t, "JOIN_KIND(7)", JoinKind(7).String())
	assert.Equal(t, "EXIT_KIND(7)", ExitKind(7).String())
}
