package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// stderr receives transient progress output; tests replace it.
var stderr io.Writer = os.Stderr

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	spinnerTick = 80 * time.Millisecond
	// spinnerShowElapsed is how long a conversion runs before the spinner
	// starts showing elapsed seconds.
	spinnerShowElapsed = time.Second
)

// spinner animates a status line on stderr while a slow conversion runs. It
// stops on its own when ctx is done.
type spinner struct {
	msg   string
	w     io.Writer
	start time.Time
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	mu    sync.Mutex
	width int // visible width of the last frame, for clearing
}

// startSpinner shows msg with an animated frame until stop is called.
func startSpinner(ctx context.Context, msg string) *spinner {
	s := &spinner{msg: msg, w: stderr, start: time.Now(), quit: make(chan struct{})}
	s.wg.Add(1)
	go s.run(ctx)
	return s
}

func (s *spinner) run(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(spinnerTick)
	defer t.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case <-t.C:
			s.draw(spinnerFrames[i%len(spinnerFrames)])
		}
	}
}

func (s *spinner) draw(frame string) {
	line := s.msg
	if d := time.Since(s.start); d >= spinnerShowElapsed {
		line += fmt.Sprintf(" %.0fs", d.Seconds())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\r%s %s", styleIconSpinner.Render(frame), StyleDim.Render(line))
	s.width = len([]rune(line)) + 2
}

// stop ends the animation, clears the line and reports how long the spinner
// ran. Later calls only report the duration.
func (s *spinner) stop() time.Duration {
	s.once.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.mu.Lock()
		if s.width > 0 {
			fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.width))
		}
		s.mu.Unlock()
	})
	return time.Since(s.start)
}

// withSpinner runs fn behind a spinner and logs how long it took.
func withSpinner(ctx context.Context, msg string, fn func() ([]byte, error)) ([]byte, error) {
	s := startSpinner(ctx, msg)
	data, err := fn()
	took := s.stop()
	loggerFromContext(ctx).Debug(msg, "took", took.Round(time.Millisecond), "bytes", len(data))
	return data, err
}
