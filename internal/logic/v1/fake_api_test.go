package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
)

type apiCall struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// fakeAPI records calls and answers them through handle.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	handle  func(ctx context.Context, c apiCall) (any, error)
	refresh func(ctx context.Context) error
}

func (f *fakeAPI) do(ctx context.Context, c apiCall, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	handle := f.handle
	f.mu.Unlock()

	if handle == nil {
		return nil
	}
	resp, err := handle(ctx, c)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeAPI) Get(ctx context.Context, path string, query url.Values, out any) error {
	return f.do(ctx, apiCall{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (f *fakeAPI) Post(ctx context.Context, path string, body, out any) error {
	return f.do(ctx, apiCall{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (f *fakeAPI) Patch(ctx context.Context, path string, body, out any) error {
	return f.do(ctx, apiCall{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func (f *fakeAPI) Delete(ctx context.Context, path string) error {
	return f.do(ctx, apiCall{Method: http.MethodDelete, Path: path}, nil)
}

func (f *fakeAPI) Refresh(ctx context.Context) error {
	if f.refresh == nil {
		return nil
	}
	return f.refresh(ctx)
}

func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]apiCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

func (n *recordingNotifier) Error(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}
