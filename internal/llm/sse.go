package llm

import (
	"bufio"
	"bytes"
	"io"
)

// lineReader yields newline-delimited records from a streaming HTTP body.
// It is used for both server-sent events (google, anthropic) and NDJSON
// (ollama).
type lineReader struct {
	body   io.ReadCloser
	reader *bufio.Reader
	closed bool
}

func newLineReader(body io.ReadCloser) *lineReader {
	return &lineReader{body: body, reader: bufio.NewReaderSize(body, 64*1024)}
}

// next returns the next non-empty line with surrounding whitespace removed.
// A final line without a trailing newline is still returned before io.EOF.
func (l *lineReader) next() ([]byte, error) {
	for {
		line, err := l.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// nextData returns the payload of the next SSE "data:" line, skipping
// comments, event names and other fields.
func (l *lineReader) nextData() ([]byte, error) {
	for {
		line, err := l.next()
		if err != nil {
			return nil, err
		}
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(data) == 0 {
			continue
		}
		return data, nil
	}
}

func (l *lineReader) close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.body.Close()
}
