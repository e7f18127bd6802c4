package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// errThrottled is returned internally by a simulated API call that should
// be retried; FakeRemote retries it with its own backoff before ever
// returning to the caller, mirroring how a real GDrive client absorbs 429s
// itself rather than pushing that retry policy onto the executor.
var errThrottled = errors.New("backend: simulated GDrive throttling")

const (
	fakeRetryBase     = 20 * time.Millisecond
	fakeRetryMaxDelay = 500 * time.Millisecond
	fakeRetryMaxTries = 6
)

type fakeObject struct {
	RemoteNode
	data []byte
}

// FakeRemote is an in-memory stand-in for the GDrive HTTP API: it keeps a
// flat map of objects keyed by goog_id and occasionally fails a call with
// errThrottled (at ThrottleRate) to exercise the retry path before
// succeeding.
type FakeRemote struct {
	mu      sync.Mutex
	objects map[string]*fakeObject
	rng     *rand.Rand

	// ThrottleRate is the probability (0..1) that any single simulated call
	// attempt returns errThrottled before FakeRemote's internal retry loop
	// reattempts it. Zero disables simulated throttling.
	ThrottleRate float64

	logger *slog.Logger
}

// NewFakeRemote constructs an empty FakeRemote. seed controls the
// throttling simulation's determinism (tests pass a fixed seed).
func NewFakeRemote(seed int64, logger *slog.Logger) *FakeRemote {
	if logger == nil {
		logger = slog.Default()
	}

	return &FakeRemote{
		objects: make(map[string]*fakeObject),
		rng:     rand.New(rand.NewSource(seed)), //nolint:gosec // simulation only, not cryptographic
		logger:  logger,
	}
}

func (f *FakeRemote) withRetry(ctx context.Context, fn func() error) error {
	backoff, err := retry.NewExponential(fakeRetryBase)
	if err != nil {
		return fmt.Errorf("backend: build fake-remote backoff: %w", err)
	}

	backoff = retry.WithCappedDuration(fakeRetryMaxDelay, backoff)
	backoff = retry.WithMaxRetries(fakeRetryMaxTries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if f.shouldThrottle() {
			f.logger.Debug("fake remote: simulated throttle, retrying")
			return retry.RetryableError(errThrottled)
		}

		return fn()
	})
}

func (f *FakeRemote) shouldThrottle() bool {
	if f.ThrottleRate <= 0 {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.rng.Float64() < f.ThrottleRate
}

// Upload stores r's bytes under a freshly-minted goog_id.
func (f *FakeRemote) Upload(ctx context.Context, parentGoogID, name string, r io.Reader, size int64) (RemoteNode, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return RemoteNode{}, fmt.Errorf("backend: read upload body: %w", err)
	}

	var result RemoteNode

	err = f.withRetry(ctx, func() error {
		obj := &fakeObject{
			RemoteNode: RemoteNode{
				GoogID: uuid.NewString(), Name: name, ParentIDs: []string{parentGoogID},
				Size: int64(len(data)), ModifiedTS: time.Now().UTC(),
			},
			data: data,
		}

		f.mu.Lock()
		f.objects[obj.GoogID] = obj
		f.mu.Unlock()

		result = obj.RemoteNode

		return nil
	})

	return result, err
}

// Download writes the stored bytes for googID to w.
func (f *FakeRemote) Download(ctx context.Context, googID string, w io.Writer) error {
	return f.withRetry(ctx, func() error {
		f.mu.Lock()
		obj, ok := f.objects[googID]
		f.mu.Unlock()

		if !ok {
			return fmt.Errorf("backend: download %s: %w", googID, errNotFound)
		}

		_, err := io.Copy(w, bytes.NewReader(obj.data))

		return err
	})
}

// CreateFolder creates a new folder object under parentGoogID.
func (f *FakeRemote) CreateFolder(ctx context.Context, parentGoogID, name string) (RemoteNode, error) {
	var result RemoteNode

	err := f.withRetry(ctx, func() error {
		obj := &fakeObject{RemoteNode: RemoteNode{
			GoogID: uuid.NewString(), Name: name, IsFolder: true,
			ParentIDs: []string{parentGoogID}, ModifiedTS: time.Now().UTC(),
		}}

		f.mu.Lock()
		f.objects[obj.GoogID] = obj
		f.mu.Unlock()

		result = obj.RemoteNode

		return nil
	})

	return result, err
}

// Move reparents googID from oldParentGoogID to newParentGoogID.
func (f *FakeRemote) Move(ctx context.Context, googID, newParentGoogID, oldParentGoogID string) error {
	return f.withRetry(ctx, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()

		obj, ok := f.objects[googID]
		if !ok {
			return fmt.Errorf("backend: move %s: %w", googID, errNotFound)
		}

		parents := make([]string, 0, len(obj.ParentIDs))

		for _, p := range obj.ParentIDs {
			if p != oldParentGoogID {
				parents = append(parents, p)
			}
		}

		obj.ParentIDs = append(parents, newParentGoogID)

		return nil
	})
}

// Rename changes googID's display name.
func (f *FakeRemote) Rename(ctx context.Context, googID, newName string) error {
	return f.withRetry(ctx, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()

		obj, ok := f.objects[googID]
		if !ok {
			return fmt.Errorf("backend: rename %s: %w", googID, errNotFound)
		}

		obj.Name = newName

		return nil
	})
}

// Delete removes googID from the store (a hard delete; trash semantics are
// modeled at the node.TrashedStatus layer, not here).
func (f *FakeRemote) Delete(ctx context.Context, googID string) error {
	return f.withRetry(ctx, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()

		delete(f.objects, googID)

		return nil
	})
}

// ListChildren returns every object whose ParentIDs includes parentGoogID.
func (f *FakeRemote) ListChildren(ctx context.Context, parentGoogID string) ([]RemoteNode, error) {
	var out []RemoteNode

	err := f.withRetry(ctx, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()

		out = out[:0]

		for _, obj := range f.objects {
			for _, p := range obj.ParentIDs {
				if p == parentGoogID {
					out = append(out, obj.RemoteNode)
					break
				}
			}
		}

		return nil
	})

	return out, err
}

var errNotFound = errors.New("backend: object not found")
