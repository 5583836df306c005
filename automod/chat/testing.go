package chat

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// One recorded call against MockPlatform.
type PlatformCall struct {
	Method      string
	Group       GroupID
	User        UserID
	Until       time.Time
	Ref         MessageRef
	Destination string
	Body        string
}

// In-memory Platform for tests. Calls are recorded in order; Errors maps a method name to the error that method should return.
type MockPlatform struct {
	mu     sync.Mutex
	Calls  []PlatformCall
	Errors map[string]error
	// if set, every call blocks until the context is done
	Hang bool
}

var _ Platform = (*MockPlatform)(nil)

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{Errors: make(map[string]error)}
}

func (p *MockPlatform) record(ctx context.Context, c PlatformCall) error {
	if p.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, c)
	return p.Errors[c.Method]
}

func (p *MockPlatform) SetError(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Errors[method] = err
}

// Copy of the recorded calls, optionally filtered to a single method.
func (p *MockPlatform) CallsTo(method string) []PlatformCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []PlatformCall{}
	for _, c := range p.Calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (p *MockPlatform) DeleteMessage(ctx context.Context, ref MessageRef) error {
	return p.record(ctx, PlatformCall{Method: "DeleteMessage", Group: ref.Group, Ref: ref})
}

func (p *MockPlatform) Restrict(ctx context.Context, group GroupID, user UserID, until time.Time) error {
	return p.record(ctx, PlatformCall{Method: "Restrict", Group: group, User: user, Until: until})
}

func (p *MockPlatform) Unrestrict(ctx context.Context, group GroupID, user UserID) error {
	return p.record(ctx, PlatformCall{Method: "Unrestrict", Group: group, User: user})
}

func (p *MockPlatform) Remove(ctx context.Context, group GroupID, user UserID) error {
	return p.record(ctx, PlatformCall{Method: "Remove", Group: group, User: user})
}

func (p *MockPlatform) Unban(ctx context.Context, group GroupID, user UserID) error {
	return p.record(ctx, PlatformCall{Method: "Unban", Group: group, User: user})
}

func (p *MockPlatform) Send(ctx context.Context, destination, body string) error {
	return p.record(ctx, PlatformCall{Method: "Send", Destination: destination, Body: body})
}

// RoleOracle with a fixed set of admins per group.
type StaticRoles struct {
	Admins map[GroupID][]UserID
	Err    error
}

func (r *StaticRoles) IsAdmin(ctx context.Context, actor UserID, group GroupID) (bool, error) {
	if r.Err != nil {
		return false, r.Err
	}
	for _, u := range r.Admins[group] {
		if u == actor {
			return true, nil
		}
	}
	return false, nil
}

// Manually advanced Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c PlatformCall) String() string {
	return fmt.Sprintf("%s(%s,%s)", c.Method, c.Group, c.User)
}
