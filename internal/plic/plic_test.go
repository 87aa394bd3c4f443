package plic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/plic"
)

func TestNoneNeverClaimsAnything(t *testing.T) {
	var c plic.Controller = plic.None{}
	require.Zero(t, c.Claim())
	c.Complete(7) // must not panic
}
