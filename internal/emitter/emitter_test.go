package emitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/inventory/pkg/inventory"
)

// recordingEmitter keeps the regions it was given.
type recordingEmitter struct {
	regions  []string
	closed   bool
	emitErr  error
	closeErr error
}

func (r *recordingEmitter) Emit(_ context.Context, result inventory.RegionResult) error {
	r.regions = append(r.regions, result.Region)
	return r.emitErr
}

func (r *recordingEmitter) Close() error {
	r.closed = true
	return r.closeErr
}

func regionResult(region string) inventory.RegionResult {
	return inventory.RegionResult{
		Region:   region,
		Bundle:   &inventory.RegionBundle{AccountID: "123456789012", Region: region},
		Duration: time.Second,
	}
}

func TestMultiEmitter_EveryEmitterSeesEveryRegion(t *testing.T) {
	first, second := &recordingEmitter{}, &recordingEmitter{}
	multi := NewMultiEmitter(first, second)

	for _, region := range []string{"us-east-1", "eu-west-1"} {
		require.NoError(t, multi.Emit(context.Background(), regionResult(region)))
	}

	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, first.regions)
	assert.Equal(t, first.regions, second.regions)
}

func TestMultiEmitter_StopsAtFailingEmitter(t *testing.T) {
	failing := &recordingEmitter{emitErr: errors.New("disk full")}
	after := &recordingEmitter{}
	multi := NewMultiEmitter(failing, after)

	err := multi.Emit(context.Background(), regionResult("us-east-1"))

	require.EqualError(t, err, "disk full")
	assert.Equal(t, []string{"us-east-1"}, failing.regions)
	assert.Empty(t, after.regions)
}

func TestMultiEmitter_CloseClosesAll(t *testing.T) {
	closeErr := errors.New("flush failed")
	failing := &recordingEmitter{closeErr: closeErr}
	after := &recordingEmitter{}

	err := NewMultiEmitter(failing, after).Close()

	assert.ErrorIs(t, err, closeErr)
	assert.True(t, failing.closed)
	assert.True(t, after.closed)
}

func TestMultiEmitter_Empty(t *testing.T) {
	multi := NewMultiEmitter()

	require.NoError(t, multi.Emit(context.Background(), regionResult("us-east-1")))
	require.NoError(t, multi.Close())
}

// Failed regions still reach every emitter; each decides what to do with them.
func TestMultiEmitter_ForwardsFailedRegions(t *testing.T) {
	rec := &recordingEmitter{}
	diff := NewDiffTracker()
	multi := NewMultiEmitter(diff, rec)

	failed := inventory.RegionResult{Region: "ap-south-1", Error: errors.New("throttled")}
	require.NoError(t, multi.Emit(context.Background(), failed))

	assert.Equal(t, []string{"ap-south-1"}, rec.regions)
}
