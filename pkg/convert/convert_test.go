package convert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/ctesttrace/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoTests = `
                Start  1: test_one
            1/2 Test #1: test_one ......................   Passed   0.20 sec
                Start  2: test_two
            2/2 Test #2: test_two ......................   Passed   0.30 sec
            `

func TestConvert_RoundTrip(t *testing.T) {
	res, err := Convert(context.Background(), strings.NewReader(twoTests), Options{})
	require.NoError(t, err)

	data, err := res.Marshal()
	require.NoError(t, err)

	want := `[{"name":"test_one","cat":"test","ph":"X","ts":0,"dur":200000,"pid":0,"tid":0},` +
		`{"name":"test_two","cat":"test","ph":"X","ts":200000,"dur":300000,"pid":0,"tid":0}]`
	assert.Equal(t, want, string(data))
	assert.Equal(t, 2, res.Stats.Finishes)
	assert.Equal(t, int64(len(twoTests)), res.Bytes)
}

func TestConvert_EmptyInput(t *testing.T) {
	res, err := Convert(context.Background(), strings.NewReader(""), Options{})
	require.NoError(t, err)

	data, err := res.Marshal()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestConvert_InterleavedBuildOutput(t *testing.T) {
	log := strings.Join([]string{
		"-- Configuring done",
		"[ 50%] Building CXX object foo.o",
		"Test project /tmp/build",
		"    Start 1: a",
		"    Start 2: b",
		"1/2 Test #1: a ....   Passed    1.50 sec",
		"2/2 Test #2: b ....***Failed    2.00 sec",
		"",
		"50% tests passed, 1 tests failed out of 2",
		"Total Test time (real) =   3.51 sec",
	}, "\n")

	res, err := Convert(context.Background(), strings.NewReader(log), Options{})
	require.NoError(t, err)

	assert.Equal(t, []trace.Record{
		{Name: "a", Start: 0, Duration: 1500 * time.Millisecond, Lane: 0},
		{Name: "b", Start: 0, Duration: 2 * time.Second, Lane: 1},
	}, res.Records)
	assert.Equal(t, 10, res.Lines)
}

func TestConvert_OrphanPolicies(t *testing.T) {
	log := `
                Start  2: test_two
            1/2 Test #1: test_one ......................   Passed   0.20 sec
            2/2 Test #2: test_two ......................   Passed   0.20 sec
            `

	_, err := Convert(context.Background(), strings.NewReader(log), Options{Policy: trace.OrphanFail})
	require.Error(t, err)

	var orphan *trace.OrphanedFinishError

	require.True(t, errors.As(err, &orphan))
	assert.Equal(t, "test_one", orphan.Name)
	assert.Equal(t, `Saw end of "test_one" without start indicator`, err.Error())

	res, err := Convert(context.Background(), strings.NewReader(log), Options{Policy: trace.OrphanDrop})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "test_two", res.Records[0].Name)
	assert.Equal(t, 1, res.Stats.Orphans)
}

func TestConvert_Tee(t *testing.T) {
	var tee bytes.Buffer

	_, err := Convert(context.Background(), strings.NewReader(twoTests), Options{Tee: &tee})
	require.NoError(t, err)
	assert.Equal(t, twoTests, tee.String())
}

func TestConvert_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Convert(ctx, strings.NewReader(twoTests), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestConvert_UnsupportedFormat(t *testing.T) {
	_, err := Convert(context.Background(), strings.NewReader(twoTests), Options{Format: "junit"})
	require.Error(t, err)
}

func TestConvertFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LastTest.log")
	require.NoError(t, os.WriteFile(path, []byte(twoTests), 0o644))

	res, err := ConvertFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)

	_, err = ConvertFile(context.Background(), filepath.Join(t.TempDir(), "missing.log"), Options{})
	require.Error(t, err)
}
