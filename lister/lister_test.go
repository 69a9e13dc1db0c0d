package lister

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testflow-dev/testflow/types"
)

type adapterFunc func(ctx context.Context, declare func([]types.TestDescriptor), cfg types.RunConfig, now time.Time) error

func (f adapterFunc) Enumerate(ctx context.Context, declare func([]types.TestDescriptor), cfg types.RunConfig, now time.Time) error {
	return f(ctx, declare, cfg, now)
}

func TestListReturnsDeclaredTestsInOrder(t *testing.T) {
	want := []types.TestDescriptor{
		{Path: types.NewTestPath("/suites/a.suite", "first")},
		{Path: types.NewTestPath("/suites/a.suite", "second")},
		{Path: types.NewTestPath("/suites/b.suite", "third")},
	}
	adapter := adapterFunc(func(ctx context.Context, declare func([]types.TestDescriptor), cfg types.RunConfig, now time.Time) error {
		declare(want)
		return nil
	})

	l, err := New(adapter, time.Second, nil)
	require.NoError(t, err)

	got, err := l.List(context.Background(), types.RunConfig{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestListTimesOutOnSlowAdapter(t *testing.T) {
	adapter := adapterFunc(func(ctx context.Context, declare func([]types.TestDescriptor), cfg types.RunConfig, now time.Time) error {
		<-ctx.Done()
		return ctx.Err()
	})

	l, err := New(adapter, 20*time.Millisecond, nil)
	require.NoError(t, err)

	_, err = l.List(context.Background(), types.RunConfig{}, time.Now())
	require.Error(t, err)
	assert.True(t, IsListingTimeout(err))
	assert.ErrorContains(t, err, "timed out")
}

func TestListSurfacesRegistrationError(t *testing.T) {
	adapter := adapterFunc(func(ctx context.Context, declare func([]types.TestDescriptor), cfg types.RunConfig, now time.Time) error {
		return &RegistrationError{Message: "syntax error in a.suite", Trace: "a.suite:3: unexpected token"}
	})

	l, err := New(adapter, time.Second, nil)
	require.NoError(t, err)

	_, err = l.List(context.Background(), types.RunConfig{}, time.Now())
	require.Error(t, err)
	assert.True(t, IsRegistrationError(err))
	assert.ErrorContains(t, err, "syntax error in a.suite")
	assert.ErrorContains(t, err, "unexpected token")
}

func TestListWrapsPlainAdapterErrors(t *testing.T) {
	adapter := adapterFunc(func(ctx context.Context, declare func([]types.TestDescriptor), cfg types.RunConfig, now time.Time) error {
		return errors.New("boom")
	})

	l, err := New(adapter, time.Second, nil)
	require.NoError(t, err)

	_, err = l.List(context.Background(), types.RunConfig{}, time.Now())
	assert.True(t, IsRegistrationError(err))
}

func TestListAdapterDeclaresThenReturns(t *testing.T) {
	want := []types.TestDescriptor{{Path: types.NewTestPath("/s.suite", "only")}}
	adapter := adapterFunc(func(ctx context.Context, declare func([]types.TestDescriptor), cfg types.RunConfig, now time.Time) error {
		declare(want)
		return nil
	})

	l, err := New(adapter, 0, nil)
	require.NoError(t, err)

	// Run repeatedly; either select arm must yield the declared list.
	for i := 0; i < 20; i++ {
		got, err := l.List(context.Background(), types.RunConfig{}, time.Now())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestListAdapterNeverDeclares(t *testing.T) {
	adapter := adapterFunc(func(ctx context.Context, declare func([]types.TestDescriptor), cfg types.RunConfig, now time.Time) error {
		return nil
	})

	l, err := New(adapter, time.Second, nil)
	require.NoError(t, err)

	_, err = l.List(context.Background(), types.RunConfig{}, time.Now())
	assert.True(t, IsRegistrationError(err))
}

func TestNewRequiresAdapter(t *testing.T) {
	_, err := New(nil, time.Second, nil)
	assert.Error(t, err)
}
