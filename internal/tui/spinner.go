package tui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner redraws one status line with the elapsed time until stopped.
type Spinner struct {
	w       io.Writer
	message string
	start   time.Time
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// StartSpinner shows message on w while a slow step runs. It does nothing
// unless w is a terminal. Call the returned function when the step is over.
func StartSpinner(w io.Writer, message string) func() {
	if !IsTerminal(w) {
		return func() {}
	}
	s := newSpinner(w, message, 100*time.Millisecond)
	return s.Stop
}

func newSpinner(w io.Writer, message string, interval time.Duration) *Spinner {
	s := &Spinner{w: w, message: message, start: time.Now(), done: make(chan struct{})}
	s.wg.Add(1)
	go s.loop(interval)
	return s
}

// Stop clears the status line. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		fmt.Fprint(s.w, "\r\033[K")
	})
}

func (s *Spinner) loop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			fmt.Fprintf(s.w, "\r\033[K%s %s (%s)", spinnerFrames[frame%len(spinnerFrames)], s.message, formatElapsed(time.Since(s.start)))
		}
	}
}

func formatElapsed(d time.Duration) string {
	switch {
	case d < 10*time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
