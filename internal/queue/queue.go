package queue

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/netpulse/internal/errors"
	"codeberg.org/mutker/netpulse/internal/logger"
	"codeberg.org/mutker/netpulse/internal/sample"
)

const (
	dirPerm  = 0o755
	filePerm = 0o600
)

// Sender delivers one sample to the ingestion endpoint. A nil error means the
// remote side explicitly confirmed receipt; anything else leaves the sample
// queued for the next flush.
type Sender interface {
	Send(ctx context.Context, s sample.Sample) error
}

// UploadQueue is a durable, file-backed FIFO of pending samples. One sample
// per line of line-delimited JSON; the file is only ever touched under mu, so
// enqueue and flush never interleave.
type UploadQueue struct {
	mu     sync.Mutex
	path   string
	sender Sender
}

func New(path string, sender Sender) *UploadQueue {
	return &UploadQueue{
		path:   path,
		sender: sender,
	}
}

// Path returns the location of the backing file
func (q *UploadQueue) Path() string {
	return q.path
}

// Enqueue durably appends one sample. It never blocks on network I/O; a
// storage failure propagates to the caller since silently losing a sample is
// worse than surfacing the error.
func (q *UploadQueue) Enqueue(s sample.Sample) error {
	errFactory := errors.New()

	line, err := s.Encode()
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(q.path), dirPerm); err != nil {
		return errFactory.Wrap(ErrQueueWrite, err)
	}

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return errFactory.Wrap(ErrQueueWrite, err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return errFactory.Wrap(ErrQueueWrite, err)
	}

	if err := f.Close(); err != nil {
		return errFactory.Wrap(ErrQueueWrite, err)
	}

	return nil
}

// Flush attempts delivery of every pending sample and returns the number of
// confirmed deliveries. Malformed lines are dropped; delivery failures stay
// queued in their original order. The backing file is rewritten atomically so
// a crash mid-flush never leaves a half-written file.
func (q *UploadQueue) Flush(ctx context.Context) (int, error) {
	errFactory := errors.New()

	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errFactory.Wrap(ErrQueueRead, err)
	}

	lines := bytes.Split(data, []byte{'\n'})
	remaining := make([][]byte, 0, len(lines))
	sent := 0

	for _, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		s, err := sample.Decode(line)
		if err != nil {
			// Static malformed content cannot be repaired by retrying.
			logger.Warn().Err(err).Msg("Dropping malformed queue entry")
			continue
		}

		if err := q.sender.Send(ctx, s); err != nil {
			logger.Warn().Err(err).Str("sample_type", string(s.Type)).Msg("Queued sample failed to send")
			remaining = append(remaining, line)
			continue
		}
		sent++
	}

	if err := q.rewrite(remaining); err != nil {
		return sent, err
	}

	return sent, nil
}

// Len reports the number of pending entries (blank lines excluded)
func (q *UploadQueue) Len() (int, error) {
	errFactory := errors.New()

	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errFactory.Wrap(ErrQueueRead, err)
	}

	n := 0
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}

	return n, nil
}

func (q *UploadQueue) rewrite(remaining [][]byte) error {
	errFactory := errors.New()

	tmp := q.path + ".tmp"
	var buf bytes.Buffer
	for _, line := range remaining {
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(tmp, buf.Bytes(), filePerm); err != nil {
		return errFactory.Wrap(ErrQueueRewrite, err)
	}

	if err := os.Rename(tmp, q.path); err != nil {
		os.Remove(tmp)
		return errFactory.Wrap(ErrQueueRewrite, err)
	}

	return nil
}
