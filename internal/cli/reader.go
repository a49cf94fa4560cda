package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/Veraticus/interest-enricher/internal/model"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// NonBlockingReader provides context-aware line reading that can be interrupted.
type NonBlockingReader struct {
	reader      *bufio.Reader
	readingLock sync.Mutex
}

// NewNonBlockingReader creates a new non-blocking reader.
func NewNonBlockingReader(reader io.Reader) *NonBlockingReader {
	if reader == nil {
		panic("reader cannot be nil")
	}

	return &NonBlockingReader{
		reader: bufio.NewReader(reader),
	}
}

// ReadString reads a string until delim, respecting context cancellation.
func (r *NonBlockingReader) ReadString(ctx context.Context, delim byte) (string, error) {
	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		r.readingLock.Lock()
		defer r.readingLock.Unlock()

		value, err := r.reader.ReadString(delim)
		resultCh <- result{value: value, err: err}
	}()

	// The read goroutine outlives a canceled context until the read returns.
	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-resultCh:
		return res.value, res.err
	}
}

// ReadLine reads a line, respecting context cancellation.
// The final line of the input is returned together with io.EOF.
func (r *NonBlockingReader) ReadLine(ctx context.Context) (string, error) {
	line, err := r.ReadString(ctx, '\n')
	return strings.TrimSpace(line), err
}

// ReadItems reads one item per line until EOF. A line is either a bare label
// or "label | Category > Path". Blank lines and lines starting with # are skipped.
func (r *NonBlockingReader) ReadItems(ctx context.Context) ([]model.Item, error) {
	var items []model.Item
	for {
		line, err := r.ReadLine(ctx)
		if item, ok := parseItemLine(line); ok {
			items = append(items, item)
		}
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func parseItemLine(line string) (model.Item, bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return model.Item{}, false
	}
	label, category, _ := strings.Cut(line, "|")
	label = strings.TrimSpace(label)
	if label == "" {
		return model.Item{}, false
	}
	return model.Item{Label: label, Category: strings.TrimSpace(category)}, true
}
