package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner presets for the blocking steps of a call.
var (
	Connecting = spinner.Globe
	Waiting    = spinner.Points
	Working    = spinner.Dot
)

type statusSpinner struct {
	out   io.Writer
	kind  spinner.Spinner
	label string
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// Spin animates label on stderr until the returned function is called. The
// function is safe to call more than once.
func Spin(kind spinner.Spinner, label string) func() {
	s := &statusSpinner{out: os.Stderr, kind: kind, label: label, stop: make(chan struct{})}
	s.wg.Add(1)
	go s.run()
	return s.halt
}

func (s *statusSpinner) run() {
	defer s.wg.Done()

	interval := s.kind.FPS
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		glyph := s.kind.Frames[frame%len(s.kind.Frames)]
		fmt.Fprintf(s.out, "\r%s %s", SpinnerStyle.Render(glyph), s.label)
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

func (s *statusSpinner) halt() {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		fmt.Fprint(s.out, "\r\033[K")
	})
}
