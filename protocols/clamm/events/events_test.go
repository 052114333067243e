package events

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Emit(Initialize{Header: Header{Seq: 1}, SqrtPriceX96: big.NewInt(1)})
	r.Emit(Swap{Header: Header{Seq: 2}})

	assert.Equal(t, 2, r.Len())
	got := r.Events()
	require.Len(t, got, 2)
	assert.Equal(t, KindInitialize, got[0].Kind())
	assert.Equal(t, uint64(2), got[1].EventHeader().Seq)

	drained := r.Drain()
	assert.Len(t, drained, 2)
	assert.Zero(t, r.Len())
}

func TestMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	Multi{a, Discard, b}.Emit(Flash{})
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestHeaderIsFlattenedInJSON(t *testing.T) {
	e := Mint{
		Header:    Header{Pool: common.HexToAddress("0x01"), Seq: 7, BlockTimestamp: 100},
		TickLower: -60,
		TickUpper: 60,
		Amount:    big.NewInt(10),
		Amount0:   big.NewInt(1),
		Amount1:   big.NewInt(2),
	}
	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, float64(7), fields["seq"])
	assert.Equal(t, float64(100), fields["blockTimestamp"])
	assert.Equal(t, float64(-60), fields["tickLower"])
}
