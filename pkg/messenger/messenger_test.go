package messenger

import (
	"testing"

	"gotest.tools/v3/assert"
)

type greeting struct {
	Text string
}

func TestTypeHashIs16BytesZeroPaddedInto32(t *testing.T) {
	h := typeHash("greeting")
	assert.Equal(t, len(h), 32)
	for _, b := range h[hashUsedLen:] {
		assert.Equal(t, b, byte(0))
	}
}

func TestTypeHashDiffersByName(t *testing.T) {
	assert.Assert(t, typeHash("a") != typeHash("b"))
}

func TestSendRecvRoundTrip(t *testing.T) {
	ln, err := Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	defer ln.Close()

	serverDone := make(chan error, 1)
	go func() {
		m, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		defer m.Close()
		var g greeting
		if err := m.Recv("greeting", &g); err != nil {
			serverDone <- err
			return
		}
		serverDone <- m.Send("greeting", greeting{Text: "hi " + g.Text})
	}()

	client, err := Dial("tcp", ln.Addr().String())
	assert.NilError(t, err)
	defer client.Close()

	assert.NilError(t, client.Send("greeting", greeting{Text: "world"}))

	var reply greeting
	assert.NilError(t, client.Recv("greeting", &reply))
	assert.Equal(t, reply.Text, "hi world")

	assert.NilError(t, <-serverDone)
}

func TestRecvRejectsTypeMismatch(t *testing.T) {
	ln, err := Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	defer ln.Close()

	go func() {
		m, err := ln.Accept()
		if err != nil {
			return
		}
		defer m.Close()
		_ = m.Send("greeting", greeting{Text: "hi"})
	}()

	client, err := Dial("tcp", ln.Addr().String())
	assert.NilError(t, err)
	defer client.Close()

	var reply greeting
	err = client.Recv("something-else", &reply)
	assert.ErrorContains(t, err, "type mismatch")
}
