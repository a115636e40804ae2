package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const defaultPoll = 250 * time.Millisecond

// TailOptions controls Tail.
type TailOptions struct {
	// Lines is how many trailing lines to print first. Zero prints none.
	Lines  int
	Follow bool
	Poll   time.Duration
	// Filter keeps only lines containing the substring, typically a run ID.
	Filter string
}

func (o TailOptions) keep(line string) bool {
	return o.Filter == "" || strings.Contains(line, o.Filter)
}

// Tail emits the last opts.Lines lines of path and, with Follow, every line
// appended afterwards. A missing file yields no lines; in follow mode Tail
// waits for it to appear.
func Tail(ctx context.Context, path string, opts TailOptions, emit func(string)) error {
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}

	lines, offset, err := lastLines(path, opts)
	if err != nil {
		return err
	}
	for _, line := range lines {
		emit(line)
	}
	if !opts.Follow {
		return nil
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		offset, err = readFrom(path, offset, opts, emit)
		if err != nil {
			return err
		}
	}
}

// lastLines keeps a ring of the newest matching lines and returns the end
// offset.
func lastLines(path string, opts TailOptions) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Lines <= 0 {
		return nil, info.Size(), nil
	}

	ring := make([]string, opts.Lines)
	count, idx := 0, 0
	offset, err := scanLines(file, opts, func(line string) {
		ring[idx] = line
		idx = (idx + 1) % opts.Lines
		if count < opts.Lines {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	out := make([]string, 0, count)
	start := 0
	if count == opts.Lines {
		start = idx
	}
	for i := range count {
		out = append(out, ring[(start+i)%opts.Lines])
	}
	return out, offset, nil
}

// readFrom emits complete lines after offset and returns the new offset.
func readFrom(path string, offset int64, opts TailOptions, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	consumed, err := scanLines(file, opts, emit)
	if err != nil {
		return offset, err
	}
	return offset + consumed, nil
}

// scanLines emits each newline-terminated matching line and returns the
// bytes consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, opts TailOptions, emit func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if opts.keep(line) {
			emit(line)
		}
	}
}
