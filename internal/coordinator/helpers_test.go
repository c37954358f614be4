package coordinator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/tankutility-bridge/internal/tankutility"
)

// fakeClient returns scripted results per device.
type fakeClient struct {
	mu      sync.Mutex
	results map[string][]fakeResult
	calls   map[string]int

	tokenErr   error
	tokenCalls atomic.Int32

	// block, if set, is received from before DeviceData returns.
	block chan struct{}
}

type fakeResult struct {
	rec tankutility.Record
	err error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		results: make(map[string][]fakeResult),
		calls:   make(map[string]int),
	}
}

// queue appends results for id; the last one repeats.
func (f *fakeClient) queue(id string, results ...fakeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = append(f.results[id], results...)
}

func (f *fakeClient) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeClient) DeviceData(ctx context.Context, id string) (tankutility.Record, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[id]
	f.calls[id]++

	results := f.results[id]
	if len(results) == 0 {
		return tankutility.Record{tankutility.FieldTank: 50.0}, nil
	}
	if n >= len(results) {
		n = len(results) - 1
	}
	return results[n].rec, results[n].err
}

func (f *fakeClient) Token(context.Context, bool) (string, error) {
	f.tokenCalls.Add(1)
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "token", nil
}

// recordingListener captures published records.
type recordingListener struct {
	mu      sync.Mutex
	records []published
	err     error
}

type published struct {
	deviceID string
	name     string
	rec      tankutility.Record
}

func (l *recordingListener) OnRecord(_ context.Context, deviceID, name string, rec tankutility.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, published{deviceID: deviceID, name: name, rec: rec})
	return l.err
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// authErr mimics the error the client returns for a rejected token.
func authErr() error {
	return tankutility.ErrInvalidAuth
}

func apiErr(status int) error {
	return &tankutility.APIError{Op: "device data", StatusCode: status, Message: "request failed"}
}
