package helpers

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEthAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.05", "50000000000000000"},
		{"0.00001", "10000000000000"},
		{"0.000001", "1000000000000"},
		{"1511.667", "1511667000000000000000"},
		{"503.757", "503757000000000000000"},
		{".5", "500000000000000000"},
		{"2 ETH", "2000000000000000000"},
	}
	for _, c := range cases {
		got, err := ParseEthAmount(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got.String(), c.in)
	}
}

func TestParseEthAmountRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "0", "0.0", "1.2.3", "1e18"} {
		_, err := ParseEthAmount(in)
		assert.Error(t, err, in)
	}
}

func TestParseEthAmountTruncatesExcessPrecision(t *testing.T) {
	// 19th decimal digit is below wei resolution and must be dropped.
	got, err := ParseEthAmount("0.0000000000000000019")
	require.NoError(t, err)
	assert.Equal(t, "1", got.String())
}

func TestPercentageOfFloors(t *testing.T) {
	assert.Equal(t, "330000", PercentageOf(big.NewInt(1_000_000), 33).String())
	assert.Equal(t, "3", PercentageOf(big.NewInt(7), 50).String())
	assert.Equal(t, "7", PercentageOf(big.NewInt(7), 100).String())
	assert.Equal(t, "0", PercentageOf(big.NewInt(7), 0).String())
	assert.Equal(t, "0", PercentageOf(nil, 50).String())

	balance, ok := new(big.Int).SetString("1511670000000000000000", 10)
	assert.True(t, ok)
	assert.Equal(t, "151167000000000000000", PercentageOf(balance, 10).String())
}

func TestFormatEth(t *testing.T) {
	assert.Equal(t, "0", FormatEth(nil))
	assert.Equal(t, "1.0000", FormatEth(big.NewInt(1e18)))
	assert.Equal(t, "0.010000", FormatEth(big.NewInt(1e16)))
}

func TestGweiRoundTrip(t *testing.T) {
	wei, err := GweiToWei("100")
	assert.NoError(t, err)
	assert.Equal(t, "100000000000", wei.String())
	assert.Equal(t, "100", WeiToGwei(wei))
}
