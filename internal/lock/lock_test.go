package lock_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/lock"
	"rvkernel/internal/testhw"
)

func init() {
	testhw.Install()
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	l := lock.New("t")
	l.Acquire()
	require.True(t, l.Holding())
	l.Release()
	require.False(t, l.Holding())
}

func TestRecursiveAcquireIsFatal(t *testing.T) {
	l := lock.New("t")
	l.Acquire()
	require.True(t, testhw.ExpectFatal(t, func() { l.Acquire() }))
	l.Release()
}

func TestReleaseUnheldIsFatal(t *testing.T) {
	l := lock.New("t")
	require.True(t, testhw.ExpectFatal(t, func() { l.Release() }))
}

func TestPushOffPopOffNesting(t *testing.T) {
	lock.PushOff()
	lock.PushOff()
	lock.PopOff()
	lock.PopOff()
}

func TestPopOffUnderflowIsFatal(t *testing.T) {
	// Interrupts off, so PopOff reaches its nesting check rather than its
	// interrupts-enabled check.
	lock.IntrOffFunc()
	defer lock.IntrOnFunc()
	require.True(t, testhw.ExpectFatal(t, func() { lock.PopOff() }))
}

func TestTwoLocksComposeIndependently(t *testing.T) {
	a := lock.New("a")
	b := lock.New("b")
	a.Acquire()
	b.Acquire()
	require.True(t, a.Holding())
	require.True(t, b.Holding())
	b.Release()
	a.Release()
}
