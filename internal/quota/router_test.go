package quota

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireRotatesAndExhausts(t *testing.T) {
	t.Parallel()

	r := NewRouter([]Credential{
		{Key: "key-a", Budget: 1},
		{Key: "key-b", Budget: 1},
	}, nil)

	key, err := r.Acquire()
	require.NoError(t, err)
	require.Equal(t, "key-a", key)

	key, err = r.Acquire()
	require.NoError(t, err)
	require.Equal(t, "key-b", key)

	_, err = r.Acquire()
	require.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestAcquireRoundRobinsWhileBudgetRemains(t *testing.T) {
	t.Parallel()

	r := NewRouter([]Credential{
		{Key: "key-a", Budget: 2},
		{Key: "key-b", Budget: 2},
	}, nil)

	var order []string
	for i := 0; i < 4; i++ {
		key, err := r.Acquire()
		require.NoError(t, err)
		order = append(order, key)
	}
	require.Equal(t, []string{"key-a", "key-b", "key-a", "key-b"}, order)

	_, err := r.Acquire()
	require.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestReportExhaustedRetiresCredential(t *testing.T) {
	t.Parallel()

	r := NewRouter([]Credential{
		{Key: "key-a", Budget: 100},
		{Key: "key-b", Budget: 100},
	}, nil)

	r.ReportExhausted("key-a")
	require.Equal(t, 1, r.Remaining())

	for i := 0; i < 3; i++ {
		key, err := r.Acquire()
		require.NoError(t, err)
		require.Equal(t, "key-b", key)
	}
}

func TestReportExhaustedUnknownKeyIsNoOp(t *testing.T) {
	t.Parallel()

	r := NewRouter([]Credential{{Key: "key-a", Budget: 1}}, nil)
	r.ReportExhausted("nope")
	require.Equal(t, 1, r.Remaining())
}

func TestNewRouterSkipsUnusableCredentials(t *testing.T) {
	t.Parallel()

	r := NewRouter([]Credential{
		{Key: "", Budget: 10},
		{Key: "key-a", Budget: 0},
	}, nil)
	require.Equal(t, 0, r.Remaining())

	_, err := r.Acquire()
	require.ErrorIs(t, err, ErrQuotaExhausted)
}
