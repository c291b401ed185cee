package backoff

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrapper_ExponentialSuccess(t *testing.T) {
	ctx := context.Background()
	counter := int32(0)

	op := func() (any, error) {
		if atomic.AddInt32(&counter, 1) < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}

	bw := NewExponential(ctx, time.Millisecond, 0, 1, 5)
	bw.SetDoOperation(op)

	called := int32(0)
	bw.SetNotify(func(err error, d time.Duration) {
		atomic.AddInt32(&called, 1)
	})

	err := bw.Exec()

	assert.NoError(t, err)
	assert.EqualValues(t, 3, counter)
	assert.EqualValues(t, 2, called)
}

func TestWrapper_ExponentialExhausted(t *testing.T) {
	ctx := context.Background()
	counter := int32(0)

	op := func() (any, error) {
		atomic.AddInt32(&counter, 1)
		return nil, errors.New("always fails")
	}

	bw := NewExponential(ctx, time.Millisecond, 0, 1, 3)
	bw.SetDoOperation(op)

	var lastErr error
	bw.SetNotify(func(err error, d time.Duration) {
		lastErr = err
	})

	err := bw.Exec()

	assert.Error(t, err)
	assert.EqualValues(t, 3, counter)
	assert.EqualError(t, lastErr, "always fails")
}

func TestWrapper_ConstantBounded(t *testing.T) {
	ctx := context.Background()
	counter := int32(0)

	bw := NewConstant(ctx, time.Millisecond, 4)
	bw.SetDoOperation(func() (any, error) {
		atomic.AddInt32(&counter, 1)
		return nil, errors.New("still down")
	})

	err := bw.Exec()

	assert.Error(t, err)
	assert.EqualValues(t, 4, counter)
}
