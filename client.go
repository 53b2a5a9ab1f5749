package leaseq

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Scheduler creates new pending tasks.
type Scheduler interface {
	Schedule(ctx context.Context, class string, data any, opts ...Option) (*Task, error)
}

// Client provides APIs to schedule tasks and to persist active tasks under a lease.
type Client struct {
	store   Store
	clock   Clock
	encoder Encoder
	log     Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock sets the local clock used to advance lease checks between store time reads.
func WithClock(c Clock) ClientOption {
	return func(cl *Client) { cl.clock = c }
}

// WithEncoder sets the payload encoder used by Schedule.
func WithEncoder(e Encoder) ClientOption {
	return func(cl *Client) { cl.encoder = e }
}

// WithLogger sets the client logger.
func WithLogger(l Logger) ClientOption {
	return func(cl *Client) { cl.log = l }
}

// NewClient creates a new client on top of store.
func NewClient(store Store, opts ...ClientOption) *Client {
	c := &Client{store: store, clock: SystemClock(), encoder: &JSONEncoder{}, log: noopLogger{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying store.
func (c *Client) Store() Store { return c.store }

// Schedule creates a new pending task of the given class. data is encoded with
// the client's Encoder and stored as the task payload; nil means no payload.
func (c *Client) Schedule(ctx context.Context, class string, data any, opts ...Option) (*Task, error) {
	cfg := buildOptions(opts)

	t := &Task{
		Class:      class,
		Priority:   cfg.priority,
		ObjectPHID: cfg.objectPHID,
	}
	if data != nil {
		b, err := c.encoder.Encode(data)
		if err != nil {
			return nil, err
		}
		t.AttachData(b)
	}

	if cfg.delay > 0 {
		now, err := c.serverNow(ctx, t)
		if err != nil {
			return nil, err
		}
		t.LeaseExpires = now.Add(cfg.delay)
	}
	if cfg.delayUntil.After(t.LeaseExpires) {
		t.LeaseExpires = cfg.delayUntil
	}

	if err := c.ForceSaveWithoutLease(ctx, t); err != nil {
		return nil, err
	}
	c.log.Debugf("scheduled: id=%d class=%s priority=%d", t.ID, t.Class, t.Priority)
	return t, nil
}

// Claim leases the most urgent eligible task for d. It returns nil, nil when the queue is empty.
func (c *Client) Claim(ctx context.Context, d time.Duration) (*Task, error) {
	now, err := c.store.ServerTime(ctx)
	if err != nil {
		return nil, err
	}
	local := c.clock.Now()
	t, err := c.store.ClaimTask(ctx, newLeaseOwner(), now, d)
	if err != nil || t == nil {
		return nil, err
	}
	t.Sync(now, local)
	return t, nil
}

// Load returns the active task with the given id.
func (c *Client) Load(ctx context.Context, id int64) (*Task, error) {
	now, err := c.store.ServerTime(ctx)
	if err != nil {
		return nil, err
	}
	local := c.clock.Now()
	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Sync(now, local)
	return t, nil
}

// LoadArchived returns the archived task with the given id.
func (c *Client) LoadArchived(ctx context.Context, id int64) (*ArchivedTask, error) {
	return c.store.GetArchivedTask(ctx, id)
}

// LoadData returns the decoded payload of t into v.
func (c *Client) LoadData(ctx context.Context, t *Task, v any) error {
	if t.DataID == 0 {
		return ErrDataNotFound
	}
	b, err := c.store.GetData(ctx, t.DataID)
	if err != nil {
		return err
	}
	return c.encoder.Decode(b, v)
}

// CheckLease fails with ErrLeaseExpired if t is leased and the lease has run out.
func (c *Client) CheckLease(ctx context.Context, t *Task) error {
	if t.LeaseOwner == "" {
		return nil
	}
	now, err := c.serverNow(ctx, t)
	if err != nil {
		return err
	}
	return CheckLease(t, now)
}

// Save checks the lease and persists t.
func (c *Client) Save(ctx context.Context, t *Task) error {
	if err := c.CheckLease(ctx, t); err != nil {
		return err
	}
	return c.ForceSaveWithoutLease(ctx, t)
}

// ForceSaveWithoutLease persists t without checking the lease. It is meant for
// inserting new tasks. An attached payload is written before the task so the
// task never references a missing blob.
func (c *Client) ForceSaveWithoutLease(ctx context.Context, t *Task) error {
	if t.ID == 0 && t.DataID == 0 && t.data != nil {
		id, err := c.store.InsertData(ctx, t.data)
		if err != nil {
			return fmt.Errorf("leaseq: insert task data: %w", err)
		}
		t.DataID = id
		t.data = nil
	}
	return c.store.SaveTask(ctx, t)
}

// SetLeaseDuration checks the lease, moves its expiry to now+d on the store clock and saves t.
func (c *Client) SetLeaseDuration(ctx context.Context, t *Task, d time.Duration) error {
	if err := c.CheckLease(ctx, t); err != nil {
		return err
	}
	now, err := c.serverNow(ctx, t)
	if err != nil {
		return err
	}
	t.LeaseExpires = now.Add(d)
	return c.ForceSaveWithoutLease(ctx, t)
}

// Archive moves t out of the active set and returns its archived copy.
func (c *Client) Archive(ctx context.Context, t *Task, r Result, d time.Duration) (*ArchivedTask, error) {
	return c.archive(ctx, t, r, d, nil)
}

func (c *Client) archive(ctx context.Context, t *Task, r Result, d time.Duration, cause error) (*ArchivedTask, error) {
	if t.ID == 0 {
		return nil, ErrNotPersisted
	}
	if _, err := ParseResult(string(r)); err != nil {
		return nil, err
	}
	if err := c.CheckLease(ctx, t); err != nil {
		return nil, err
	}
	now, err := c.serverNow(ctx, t)
	if err != nil {
		return nil, err
	}
	a := newArchivedTask(t, r, d.Microseconds(), now)
	if cause != nil {
		a.Error = cause.Error()
	}
	if err := c.store.ArchiveTask(ctx, t, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete always fails: active tasks leave the queue only through Archive.
func (c *Client) Delete(context.Context, *Task) error {
	return ErrIllegalOperation
}

// PurgeArchive deletes up to limit tasks archived more than olderThan ago.
func (c *Client) PurgeArchive(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	now, err := c.store.ServerTime(ctx)
	if err != nil {
		return 0, err
	}
	return c.store.PurgeArchive(ctx, now.Add(-olderThan), limit)
}

// serverNow returns the current store time as seen from t, syncing t with the
// store on first use.
func (c *Client) serverNow(ctx context.Context, t *Task) (time.Time, error) {
	if !t.Synced() {
		now, err := c.store.ServerTime(ctx)
		if err != nil {
			return time.Time{}, err
		}
		t.Sync(now, c.clock.Now())
	}
	return t.ServerNow(c.clock), nil
}

// newLeaseOwner returns a fresh owner tag of the form host:pid:uuid.
func newLeaseOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString())
}
