// SPDX-License-Identifier: MPL-2.0

package hook

import "bytes"

// lineWriter splits written bytes into lines and hands each complete line
// to fn. os/exec copies each stream from one goroutine, so no locking.
type lineWriter struct {
	fn  LineFunc
	buf []byte
}

func newLineWriter(fn LineFunc) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing line that had no newline.
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	if w.fn == nil {
		return
	}
	w.fn(string(bytes.TrimSuffix(line, []byte{'\r'})))
}
