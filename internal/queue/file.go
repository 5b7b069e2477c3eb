package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/stackdhq/stackd/internal/types"
)

// FileQueue is a filesystem-backed queue. Each request is one JSON file under
// pending/<priority>/; claiming is an os.Rename into processing/, which the
// OS guarantees is atomic, so exactly one of any number of concurrent
// dequeuers wins each file.
type FileQueue struct {
	dir string
}

// NewFileQueue creates the queue directory layout under dir.
func NewFileQueue(dir string) (*FileQueue, error) {
	q := &FileQueue{dir: dir}
	dirs := []string{q.processingDir()}
	for _, pri := range Priorities {
		dirs = append(dirs, q.pendingDir(pri))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
	}
	return q, nil
}

func (q *FileQueue) pendingDir(pri Priority) string {
	return filepath.Join(q.dir, "pending", string(pri))
}

func (q *FileQueue) processingDir() string {
	return filepath.Join(q.dir, "processing")
}

// Enqueue writes the request to a temp file and renames it into the pending
// directory so readers never observe a partial write.
func (q *FileQueue) Enqueue(_ context.Context, req *types.JobRequest, pri Priority) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	tmp := filepath.Join(q.dir, req.JobID+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	dst := filepath.Join(q.pendingDir(pri), req.JobID+".json")
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Dequeue claims the oldest pending request, trying priorities in order. The
// rename into processing/ is the claim: a loser's rename fails with ENOENT
// and it moves on to the next candidate.
func (q *FileQueue) Dequeue(_ context.Context) (*types.JobRequest, error) {
	for _, pri := range Priorities {
		names, err := q.sortedPending(pri)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		for _, name := range names {
			src := filepath.Join(q.pendingDir(pri), name)
			dst := filepath.Join(q.processingDir(), name)
			if err := os.Rename(src, dst); err != nil {
				// Another worker claimed it first.
				continue
			}
			req, err := readRequest(dst)
			if err != nil {
				return nil, err
			}
			return req, nil
		}
	}
	return nil, nil
}

// Complete removes the claimed job from processing.
func (q *FileQueue) Complete(_ context.Context, jobID string) error {
	path := filepath.Join(q.processingDir(), jobID+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	return nil
}

// Peek returns all pending requests in priority then age order, without
// claiming them.
func (q *FileQueue) Peek(_ context.Context) ([]*types.JobRequest, error) {
	var out []*types.JobRequest
	for _, pri := range Priorities {
		names, err := q.sortedPending(pri)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		for _, name := range names {
			req, err := readRequest(filepath.Join(q.pendingDir(pri), name))
			if err != nil {
				// Claimed or removed between listing and reading.
				continue
			}
			out = append(out, req)
		}
	}
	return out, nil
}

// sortedPending lists pending files oldest first.
func (q *FileQueue) sortedPending(pri Priority) ([]string, error) {
	entries, err := os.ReadDir(q.pendingDir(pri))
	if err != nil {
		return nil, err
	}
	type candidate struct {
		name string
		mod  int64
	}
	var cands []candidate
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cands = append(cands, candidate{e.Name(), info.ModTime().UnixNano()})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].mod != cands[j].mod {
			return cands[i].mod < cands[j].mod
		}
		return cands[i].name < cands[j].name
	})
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	return names, nil
}

func readRequest(path string) (*types.JobRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var req types.JobRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed queue entry %s: %w", path, err)
	}
	return &req, nil
}
