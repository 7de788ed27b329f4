package log

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

type MultiWriter struct {
	writers []io.Writer
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		_, e := w.Write(p)
		if e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

// writerHook formats entries at or above its threshold into w.
type writerHook struct {
	mu     sync.Mutex
	w      io.Writer
	f      logrus.Formatter
	levels []logrus.Level
}

func newWriterHook(w io.Writer, f logrus.Formatter, threshold logrus.Level) *writerHook {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, lv := range logrus.AllLevels {
		if lv <= threshold {
			levels = append(levels, lv)
		}
	}
	return &writerHook{w: w, f: f, levels: levels}
}

func (h *writerHook) Levels() []logrus.Level { return h.levels }

func (h *writerHook) Fire(entry *logrus.Entry) error {
	b, err := h.f.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(b)
	return err
}
