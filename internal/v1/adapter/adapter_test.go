package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingAdapter struct {
	incoming [][3]string
}

func (r *recordingAdapter) Incoming(roomID, event, payload string) {
	r.incoming = append(r.incoming, [3]string{roomID, event, payload})
}

func (r *recordingAdapter) Outgoing(roomID, event, payload string) {}

func TestInstallAndCurrent(t *testing.T) {
	defer Reset()

	assert.Nil(t, Current())

	a := &recordingAdapter{}
	Install(a)
	assert.Same(t, a, Current().(*recordingAdapter))
}

func TestInstall_ReplacesPrior(t *testing.T) {
	defer Reset()

	first := &recordingAdapter{}
	second := &recordingAdapter{}

	Install(first)
	Install(second)

	assert.Same(t, second, Current().(*recordingAdapter))
}

func TestReset(t *testing.T) {
	Install(&recordingAdapter{})
	Reset()
	assert.Nil(t, Current())
}
