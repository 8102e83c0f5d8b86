package logutils

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 256

// Sink is a logrus hook keeping the most recent log lines and fanning new
// ones out to subscribers, e.g. the log pane of the web UI.
type Sink struct {
	mu          sync.Mutex
	formatter   logrus.Formatter
	history     []string
	size        int
	subscribers map[chan string]struct{}
}

var _ logrus.Hook = (*Sink)(nil)

func NewSink(size int) *Sink {
	if size <= 0 {
		size = 500
	}
	return &Sink{
		formatter: &logrus.TextFormatter{
			DisableColors:    true,
			FullTimestamp:    true,
			DisableSorting:   false,
			QuoteEmptyFields: true,
		},
		size:        size,
		subscribers: map[chan string]struct{}{},
	}
}

// InstallSink attaches a new Sink to the standard logger
func InstallSink(size int) *Sink {
	s := NewSink(size)
	log.AddHook(s)
	return s
}

func (s *Sink) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *Sink) Fire(entry *logrus.Entry) error {
	b, err := s.formatter.Format(entry)
	if err != nil {
		return err
	}
	s.publish(strings.TrimRight(string(b), "\n"))
	return nil
}

// Write makes the sink usable as an io.Writer, one line per call
func (s *Sink) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		s.publish(line)
	}
	return len(p), nil
}

func (s *Sink) publish(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, line)
	if len(s.history) > s.size {
		s.history = append([]string(nil), s.history[len(s.history)-s.size:]...)
	}
	for ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// slow reader, drop the line
		}
	}
}

// Subscribe returns the lines logged so far and a channel receiving the
// following ones. cancel must be called to release the subscription.
func (s *Sink) Subscribe() (history []string, lines <-chan string, cancel func()) {
	ch := make(chan string, subscriberBuffer)
	s.mu.Lock()
	history = append([]string(nil), s.history...)
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
	return history, ch, cancel
}

func (s *Sink) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}
