package trace

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/ctesttrace/pkg/ctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func feedAll(t *testing.T, r *Reconstructor, tokens ...ctest.Token) {
	t.Helper()

	for _, tok := range tokens {
		require.NoError(t, r.Feed(tok))
	}
}

func TestReconstructor_SinglePair(t *testing.T) {
	r := NewReconstructor()
	feedAll(t, r,
		ctest.StartToken("a_test"),
		ctest.FinishToken("a_test", ms(200)),
	)

	records, stats := r.Finish()
	require.Len(t, records, 1)
	assert.Equal(t, Record{Name: "a_test", Start: 0, Duration: ms(200), Lane: 0}, records[0])
	assert.Equal(t, 1, stats.Starts)
	assert.Equal(t, 1, stats.Finishes)
	assert.Equal(t, 1, stats.Lanes)
}

func TestReconstructor_LaneAssignment(t *testing.T) {
	tests := []struct {
		name   string
		tokens []ctest.Token
		want   []Record
	}{
		{
			name: "back to back reuses lane",
			tokens: []ctest.Token{
				ctest.StartToken("test_one"),
				ctest.FinishToken("test_one", ms(200)),
				ctest.StartToken("test_two"),
				ctest.FinishToken("test_two", ms(300)),
			},
			want: []Record{
				{Name: "test_one", Start: 0, Duration: ms(200), Lane: 0},
				{Name: "test_two", Start: ms(200), Duration: ms(300), Lane: 0},
			},
		},
		{
			name: "overlapping starts get distinct lanes",
			tokens: []ctest.Token{
				ctest.StartToken("test_one"),
				ctest.StartToken("test_two"),
				ctest.FinishToken("test_one", ms(200)),
				ctest.FinishToken("test_two", ms(300)),
			},
			want: []Record{
				{Name: "test_one", Start: 0, Duration: ms(200), Lane: 0},
				{Name: "test_two", Start: 0, Duration: ms(300), Lane: 1},
			},
		},
		{
			name: "freed lane reused while another runs",
			tokens: []ctest.Token{
				ctest.StartToken("test_one"),
				ctest.StartToken("test_two"),
				ctest.FinishToken("test_one", ms(100)),
				ctest.StartToken("test_three"),
				ctest.FinishToken("test_two", ms(500)),
				ctest.FinishToken("test_three", ms(100)),
			},
			want: []Record{
				{Name: "test_one", Start: 0, Duration: ms(100), Lane: 0},
				{Name: "test_two", Start: 0, Duration: ms(500), Lane: 1},
				{Name: "test_three", Start: ms(100), Duration: ms(100), Lane: 0},
			},
		},
		{
			name: "fifo reuse prefers oldest freed lane",
			tokens: []ctest.Token{
				ctest.StartToken("a"),
				ctest.StartToken("b"),
				ctest.StartToken("c"),
				ctest.FinishToken("b", ms(10)),
				ctest.FinishToken("a", ms(20)),
				ctest.StartToken("d"),
				ctest.StartToken("e"),
				ctest.FinishToken("c", ms(30)),
				ctest.FinishToken("d", ms(10)),
				ctest.FinishToken("e", ms(10)),
			},
			want: []Record{
				{Name: "b", Start: 0, Duration: ms(10), Lane: 1},
				{Name: "a", Start: 0, Duration: ms(20), Lane: 0},
				{Name: "c", Start: 0, Duration: ms(30), Lane: 2},
				{Name: "d", Start: ms(20), Duration: ms(10), Lane: 1},
				{Name: "e", Start: ms(20), Duration: ms(10), Lane: 0},
			},
		},
		{
			name: "output follows finish order",
			tokens: []ctest.Token{
				ctest.StartToken("slow"),
				ctest.StartToken("fast"),
				ctest.FinishToken("fast", ms(10)),
				ctest.FinishToken("slow", ms(90)),
			},
			want: []Record{
				{Name: "fast", Start: 0, Duration: ms(10), Lane: 1},
				{Name: "slow", Start: 0, Duration: ms(90), Lane: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconstructor()
			feedAll(t, r, tt.tokens...)

			records, _ := r.Finish()
			assert.Equal(t, tt.want, records)
		})
	}
}

func TestReconstructor_ClockNeverMovesBackward(t *testing.T) {
	r := NewReconstructor()
	feedAll(t, r,
		ctest.StartToken("long"),
		ctest.StartToken("short"),
		ctest.FinishToken("long", ms(500)),
	)
	assert.Equal(t, ms(500), r.Clock())

	feedAll(t, r, ctest.FinishToken("short", ms(100)))
	assert.Equal(t, ms(500), r.Clock())

	feedAll(t, r, ctest.StartToken("next"), ctest.FinishToken("next", ms(1)))

	records := r.Records()
	require.Len(t, records, 3)
	assert.Equal(t, ms(500), records[2].Start)
}

func TestReconstructor_OrphanFail(t *testing.T) {
	r := NewReconstructor()
	feedAll(t, r, ctest.StartToken("test_two"))

	err := r.Feed(ctest.FinishToken("test_one", ms(200)))
	require.Error(t, err)

	var orphan *OrphanedFinishError

	require.True(t, errors.As(err, &orphan))
	assert.Equal(t, "test_one", orphan.Name)
	assert.Contains(t, err.Error(), `Saw end of "test_one" without start indicator`)

	assert.Empty(t, r.Records())
	assert.Len(t, r.Pending(), 1)
	assert.Equal(t, time.Duration(0), r.Clock())
}

func TestReconstructor_OrphanDropLeavesStateUntouched(t *testing.T) {
	r := NewReconstructor(WithOrphanPolicy(OrphanDrop))
	feedAll(t, r,
		ctest.StartToken("test_one"),
		ctest.FinishToken("test_one", ms(200)),
	)

	clock := r.Clock()
	free := r.FreeLanes()

	feedAll(t, r, ctest.FinishToken("never_started", ms(0)))

	assert.Equal(t, clock, r.Clock())
	assert.Equal(t, free, r.FreeLanes())
	assert.Len(t, r.Records(), 1)
	assert.Equal(t, 1, r.Stats().Orphans)
}

func TestReconstructor_DoubleFinishIsOrphan(t *testing.T) {
	r := NewReconstructor(WithOrphanPolicy(OrphanDrop))
	feedAll(t, r,
		ctest.StartToken("x"),
		ctest.FinishToken("x", ms(10)),
		ctest.FinishToken("x", ms(10)),
	)

	assert.Len(t, r.Records(), 1)
	assert.Equal(t, 1, r.Stats().Orphans)
}

func TestReconstructor_RepeatedStartOverwrites(t *testing.T) {
	r := NewReconstructor()
	feedAll(t, r,
		ctest.StartToken("first"),
		ctest.FinishToken("first", ms(100)),
		ctest.StartToken("dup"),
		ctest.StartToken("dup"),
	)

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, Pending{Start: ms(100), Lane: 1}, pending["dup"])
	assert.Empty(t, r.FreeLanes())

	feedAll(t, r, ctest.FinishToken("dup", ms(50)))
	assert.Equal(t, []uint32{1}, r.FreeLanes())
}

func TestReconstructor_LanesDisjointFromPool(t *testing.T) {
	r := NewReconstructor()
	feedAll(t, r,
		ctest.StartToken("a"),
		ctest.StartToken("b"),
		ctest.FinishToken("a", ms(10)),
		ctest.StartToken("c"),
		ctest.StartToken("d"),
		ctest.FinishToken("b", ms(10)),
	)

	inUse := make(map[uint32]struct{}, 4)
	for _, p := range r.Pending() {
		inUse[p.Lane] = struct{}{}
	}

	for _, lane := range r.FreeLanes() {
		_, taken := inUse[lane]
		assert.False(t, taken, "lane %d both free and in use", lane)
	}
}

func TestReconstructor_UnfinishedDropped(t *testing.T) {
	r := NewReconstructor()
	feedAll(t, r,
		ctest.StartToken("done"),
		ctest.StartToken("hung"),
		ctest.FinishToken("done", ms(10)),
		ctest.Token{Kind: ctest.TokenUnknown},
	)

	records, stats := r.Finish()
	require.Len(t, records, 1)
	assert.Equal(t, "done", records[0].Name)
	assert.Equal(t, 1, stats.Unfinished)
	assert.Equal(t, 1, stats.Ignored)
	assert.Empty(t, r.Pending())
}

func TestReconstructor_FeedLine(t *testing.T) {
	log := `
                Start  1: test_one
            1/2 Test #1: test_one ......................   Passed   0.20 sec
                Start  2: test_two
            2/2 Test #2: test_two ......................   Passed   0.30 sec
`

	r := NewReconstructor()
	for _, line := range strings.Split(log, "\n") {
		require.NoError(t, r.FeedLine(line))
	}

	records, _ := r.Finish()
	assert.Equal(t, []Record{
		{Name: "test_one", Start: 0, Duration: ms(200), Lane: 0},
		{Name: "test_two", Start: ms(200), Duration: ms(300), Lane: 0},
	}, records)
}

func TestOrphanPolicy_String(t *testing.T) {
	assert.Equal(t, "fail", OrphanFail.String())
	assert.Equal(t, "drop", OrphanDrop.String())
}
