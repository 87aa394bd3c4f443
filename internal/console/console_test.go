package console_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/console"
)

func TestPutsWritesRawBytes(t *testing.T) {
	old := console.Write
	defer func() { console.Write = old }()

	var got []byte
	console.Write = func(b []byte) { got = append(got, b...) }

	console.Puts("hello\r\n")
	require.Equal(t, "hello\r\n", string(got))
}

func TestPutHex64ZeroPads(t *testing.T) {
	old := console.Write
	defer func() { console.Write = old }()

	var got []byte
	console.Write = func(b []byte) { got = append(got, b...) }

	console.PutHex64(0xabc)
	require.Equal(t, "0000000000000abc", string(got))
}
