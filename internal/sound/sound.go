// Package sound is the hook for short confirmation sounds. Playback itself
// belongs to the UI shell.
package sound

import (
	"sync"

	"github.com/quantumauth-io/quantum-go-utils/log"
)

type Type string

const AddedContact Type = "addedContact"

type Player interface {
	PlaySound(t Type)
}

// LogPlayer records requested sounds in the log.
type LogPlayer struct{}

func (LogPlayer) PlaySound(t Type) {
	log.Info("play sound", "type", string(t))
}

// Recorder keeps every requested sound; the http shell drains it.
type Recorder struct {
	mu     sync.Mutex
	played []Type
}

func (r *Recorder) PlaySound(t Type) {
	r.mu.Lock()
	r.played = append(r.played, t)
	r.mu.Unlock()
}

// Drain returns and clears the recorded sounds.
func (r *Recorder) Drain() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.played
	r.played = nil
	return out
}
