// Deferred posts: a pending set keyed by monotonically increasing id, delivered by a periodic tick.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("automod_schedule")

// Bound on each delivery attempt.
const DefaultSendTimeout = 10 * time.Second

type ScheduledPost struct {
	ID          int64     `json:"id"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	FireAt      time.Time `json:"fire_at"`
}

type Dispatcher struct {
	Sender      chat.Sender
	Logger      *slog.Logger
	SendTimeout time.Duration
	// optional; without a store pending posts are lost on restart
	Store PostStore

	mu      sync.Mutex
	pending map[int64]*ScheduledPost
	nextID  int64
}

func NewDispatcher(sender chat.Sender, store PostStore, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Sender:      sender,
		Store:       store,
		Logger:      logger.With("component", "schedule"),
		SendTimeout: DefaultSendTimeout,
		pending:     make(map[int64]*ScheduledPost),
	}
}

// Restores pending posts and the id counter from the store, replacing any in-memory state.
func (d *Dispatcher) Load(ctx context.Context) error {
	if d.Store == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	posts, err := d.Store.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("loading scheduled posts: %w", err)
	}
	maxID, found, err := d.Store.MaxID(ctx)
	if err != nil {
		return fmt.Errorf("loading scheduled post id: %w", err)
	}
	d.pending = make(map[int64]*ScheduledPost, len(posts))
	for i := range posts {
		d.pending[posts[i].ID] = &posts[i]
	}
	d.nextID = 0
	if found {
		d.nextID = maxID + 1
	}
	pendingPosts.Set(float64(len(d.pending)))
	d.Logger.Info("loaded scheduled posts", "pending", len(d.pending), "nextID", d.nextID)
	return nil
}

// Adds a post to be delivered to destination once delay (ParseDelay grammar) has passed since now. Returns the new post's id.
func (d *Dispatcher) Schedule(ctx context.Context, destination, body, delay string, now time.Time) (int64, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return 0, fmt.Errorf("%w: missing destination", chat.ErrInvalidInput)
	}
	if strings.TrimSpace(body) == "" {
		return 0, fmt.Errorf("%w: missing message", chat.ErrInvalidInput)
	}
	dur, err := ParseDelay(delay)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p := &ScheduledPost{
		ID:          d.nextID,
		Destination: destination,
		Body:        body,
		FireAt:      now.Add(dur),
	}
	if d.Store != nil {
		if err := d.Store.Insert(context.WithoutCancel(ctx), p); err != nil {
			return 0, fmt.Errorf("storing scheduled post: %w", err)
		}
	}
	d.pending[p.ID] = p
	d.nextID++
	postsScheduled.Inc()
	pendingPosts.Set(float64(len(d.pending)))
	d.Logger.Info("scheduled post", "id", p.ID, "destination", destination, "fireAt", p.FireAt)
	return p.ID, nil
}

// Removes a pending post. Not an error if there is no such post (already sent, or cancelled).
func (d *Dispatcher) Cancel(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[id]; !ok {
		return nil
	}
	if d.Store != nil {
		if err := d.Store.Remove(context.WithoutCancel(ctx), id); err != nil {
			return fmt.Errorf("removing scheduled post: %w", err)
		}
	}
	delete(d.pending, id)
	postsCancelled.Inc()
	pendingPosts.Set(float64(len(d.pending)))
	d.Logger.Info("cancelled post", "id", id)
	return nil
}

// Snapshot of pending posts, ordered by id.
func (d *Dispatcher) Pending() []ScheduledPost {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ScheduledPost, 0, len(d.pending))
	for _, p := range d.pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Removes every post due at now, then attempts delivery of each exactly once. Posts which could not be removed from the store wait for a later tick. Failed deliveries are logged and dropped. Returns the number delivered.
//
// Runs to completion even if ctx is cancelled partway, so a shutdown never leaves a post removed but unattempted.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) int {
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "Tick")
	defer span.End()

	due := d.takeDue(ctx, now)
	if len(due) == 0 {
		return 0
	}
	span.SetAttributes(attribute.Int("due", len(due)))

	delivered := 0
	for _, p := range due {
		if err := d.deliver(ctx, &p); err != nil {
			postsDelivered.WithLabelValues("failed").Inc()
			d.Logger.Error("failed to deliver scheduled post", "id", p.ID, "destination", p.Destination, "err", err)
			continue
		}
		postsDelivered.WithLabelValues("ok").Inc()
		d.Logger.Info("delivered scheduled post", "id", p.ID, "destination", p.Destination)
		delivered++
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, p *ScheduledPost) error {
	ctx, span := tracer.Start(ctx, "DeliverPost", trace.WithAttributes(
		attribute.Int64("id", p.ID),
		attribute.String("destination", p.Destination),
	))
	defer span.End()
	err := d.send(ctx, p.Destination, p.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
	}
	return err
}

// scan-and-remove pass, under the lock. A post whose durable removal fails stays pending and is not delivered, so a restart can never send it twice.
func (d *Dispatcher) takeDue(ctx context.Context, now time.Time) []ScheduledPost {
	d.mu.Lock()
	defer d.mu.Unlock()

	var due []ScheduledPost
	for _, p := range d.pending {
		if p.FireAt.After(now) {
			continue
		}
		due = append(due, *p)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })

	taken := due[:0]
	for _, p := range due {
		if d.Store != nil {
			if err := d.Store.Remove(ctx, p.ID); err != nil {
				d.Logger.Error("failed to remove due post from store, holding it back", "id", p.ID, "err", err)
				continue
			}
		}
		delete(d.pending, p.ID)
		taken = append(taken, p)
	}
	pendingPosts.Set(float64(len(d.pending)))
	return taken
}

func (d *Dispatcher) send(ctx context.Context, destination, body string) error {
	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Sender.Send(ctx, destination, body)
}

// Sends body to every destination right away. Every destination is attempted; failures are joined into the returned error.
func (d *Dispatcher) CrossPost(ctx context.Context, body string, destinations []string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: missing message", chat.ErrInvalidInput)
	}
	if len(destinations) == 0 {
		return fmt.Errorf("%w: no destinations", chat.ErrInvalidInput)
	}
	var errs []error
	for _, dest := range destinations {
		if err := d.send(ctx, dest, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dest, err))
		}
	}
	crossPosts.Add(float64(len(destinations) - len(errs)))
	return errors.Join(errs...)
}
