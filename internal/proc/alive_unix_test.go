//go:build unix

package proc

import (
	"os"
	"testing"
)

func TestAlive(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("Alive(self) = false")
	}
	if Alive(0) || Alive(-5) {
		t.Error("non-positive pids must not be alive")
	}
}
