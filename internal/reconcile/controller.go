// Package reconcile keeps the local cart and wishlist in step with the
// signed-in user's remote copies across sign-in, sign-out and user switch,
// and pushes local changes while a user is signed in.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/events"
	"github.com/lherron/cartsync/internal/identity"
	"github.com/lherron/cartsync/internal/kv"
	"github.com/lherron/cartsync/internal/logging"
	"github.com/lherron/cartsync/internal/queue"
	"github.com/lherron/cartsync/internal/store"
)

// OwnerKey is the storage key of the last reconciled identity.
const OwnerKey = "sync_owner"

// ErrMergePending is returned while real-time sync is suspended because the
// login merge could not read the remote collections.
var ErrMergePending = errors.New("login merge pending: remote state could not be fetched")

// Remote is the subset of the remote client the controller needs.
type Remote interface {
	FetchWishlist(ctx context.Context, userID string) (domain.WishlistPayload, error)
	ReplaceWishlist(ctx context.Context, userID string, payload domain.WishlistPayload) error
	FetchCart(ctx context.Context, userID string) (domain.CartPayload, error)
	ReplaceCart(ctx context.Context, userID string, payload domain.CartPayload) error
	Product(ctx context.Context, id string) (domain.Product, error)
}

// Options configures a Controller.
type Options struct {
	Store  *store.Store
	Remote Remote
	// Storage persists the reconciled owner so a restart does not repeat a
	// login merge. Optional.
	Storage kv.Storage
	// Events records transitions in the event log. Optional.
	Events       *events.Writer
	Log          logrus.FieldLogger
	FetchFailure FetchFailurePolicy
	// PushDebounce collapses bursts of real-time pushes.
	PushDebounce time.Duration
	Now          func() time.Time
}

type ownerRecord struct {
	UserID       string `json:"userId,omitempty"`
	MergePending bool   `json:"mergePending,omitempty"`
}

// Controller drives reconciliation for one app session.
type Controller struct {
	store   *store.Store
	remote  Remote
	storage kv.Storage
	events  *events.Writer
	log     logrus.FieldLogger
	policy  FetchFailurePolicy
	now     func() time.Time
	// origin tags the controller's own store writes.
	origin string

	ctx    context.Context
	cancel context.CancelFunc

	transitions *queue.Queue
	pushes      map[domain.ResourceKind]*queue.Queue

	mu           sync.Mutex
	started      bool
	target       domain.Identity
	owner        domain.Identity
	mergePending bool
	reconciling  bool
	dirty        map[domain.ResourceKind]bool
	background   bool
	retry        bool
	lastErr      error
	unsubscribe  []func()
}

// New returns a controller. Call Start to begin observing identity.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("reconcile: store is required")
	}
	if opts.Remote == nil {
		return nil, fmt.Errorf("reconcile: remote is required")
	}
	policy, err := ParseFetchFailurePolicy(string(opts.FetchFailure))
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:       opts.Store,
		remote:      opts.Remote,
		storage:     opts.Storage,
		events:      opts.Events,
		log:         logging.OrDiscard(opts.Log).WithField("component", "reconcile"),
		policy:      policy,
		now:         opts.Now,
		origin:      "reconcile:" + uuid.NewString(),
		ctx:         ctx,
		cancel:      cancel,
		transitions: queue.New(0),
		pushes: map[domain.ResourceKind]*queue.Queue{
			domain.ResourceCart:     queue.New(opts.PushDebounce),
			domain.ResourceWishlist: queue.New(opts.PushDebounce),
		},
		dirty: make(map[domain.ResourceKind]bool),
	}, nil
}

// Start restores the reconciled owner, subscribes to local changes and then
// to provider. The provider's current identity is reconciled immediately.
func (c *Controller) Start(ctx context.Context, provider identity.Provider) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("reconcile: already started")
	}
	c.started = true
	c.mu.Unlock()

	if c.storage != nil {
		var rec ownerRecord
		if _, err := kv.LoadJSON(ctx, c.storage, OwnerKey, &rec); err != nil {
			c.log.WithError(err).Warn("failed to load sync owner; assuming guest")
		} else {
			c.mu.Lock()
			c.owner = domain.User(rec.UserID)
			c.target = c.owner
			c.mergePending = rec.MergePending && rec.UserID != ""
			c.mu.Unlock()
		}
	}

	unsubBus := c.store.Bus().Subscribe(c.onChange)
	unsubIdentity := provider.Subscribe(c.onIdentity)

	c.mu.Lock()
	c.unsubscribe = append(c.unsubscribe, unsubBus, unsubIdentity)
	c.mu.Unlock()
	return nil
}

// Owner returns the identity local state currently belongs to.
func (c *Controller) Owner() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// MergePending reports whether real-time sync is suspended by a failed
// login merge.
func (c *Controller) MergePending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergePending
}

// LastError returns the error of the most recent transition or failed
// push, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Wait blocks until queued transitions and pushes have finished.
func (c *Controller) Wait(ctx context.Context) error {
	if err := c.transitions.Flush(ctx); err != nil {
		return err
	}
	for _, kind := range resources {
		if err := c.pushes[kind].Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Background issues a final push of both collections for the signed-in user
// and waits for it. Nothing is pushed for a guest or while a merge is pending.
func (c *Controller) Background(ctx context.Context) error {
	c.mu.Lock()
	c.background = true
	c.mu.Unlock()
	c.transitions.Submit(c.reconcile)
	return c.Wait(ctx)
}

// Retry reruns a pending login merge and reports ErrMergePending if it
// still cannot complete.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	c.retry = true
	c.mu.Unlock()
	c.transitions.Submit(c.reconcile)
	if err := c.Wait(ctx); err != nil {
		return err
	}
	if c.MergePending() {
		return ErrMergePending
	}
	return nil
}

// Close stops observing identity and local changes, then waits for queued
// work. Work still running when ctx ends is abandoned.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	for _, fn := range unsubscribe {
		fn()
	}
	err := c.Wait(ctx)
	c.cancel()
	return err
}

var resources = []domain.ResourceKind{domain.ResourceCart, domain.ResourceWishlist}

func (c *Controller) onIdentity(id domain.Identity) {
	c.mu.Lock()
	c.target = id
	c.mu.Unlock()
	c.transitions.Submit(c.reconcile)
}

// onChange receives every local mutation. Changes made while a transition
// runs are remembered and pushed once it completes; changes the controller
// makes itself are never pushed.
func (c *Controller) onChange(ch events.Change) {
	if ch.Origin == c.origin {
		return
	}
	c.mu.Lock()
	if c.reconciling {
		c.dirty[ch.Resource] = true
		c.mu.Unlock()
		return
	}
	owner, pending := c.owner, c.mergePending
	c.mu.Unlock()

	if !owner.Present() {
		return
	}
	if pending {
		c.log.WithField("user_id", owner.UserID).Debug("local change not pushed: login merge pending")
		return
	}
	c.schedulePush(owner, ch.Resource)
}

// schedulePush queues a real-time push. The job reads the collection when it
// runs and is dropped if the owner changed or a transition started since.
func (c *Controller) schedulePush(user domain.Identity, kind domain.ResourceKind) {
	c.pushes[kind].Submit(func() {
		c.mu.Lock()
		stale := c.reconciling || c.owner != user || c.mergePending
		c.mu.Unlock()
		if stale {
			return
		}
		if err := c.push(c.ctx, user.UserID, kind); err != nil {
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
			c.log.WithError(err).WithFields(logrus.Fields{
				"user_id":  user.UserID,
				"resource": kind,
			}).Warn("real-time push failed")
		}
	})
}

// reconcile runs on the transition queue. It moves local state from the last
// reconciled owner to the newest observed identity, then serves any pending
// retry or background request.
func (c *Controller) reconcile() {
	c.mu.Lock()
	from, to := c.owner, c.target
	retry, background := c.retry, c.background
	c.retry, c.background = false, false
	c.reconciling = true
	c.mu.Unlock()

	ctx := c.ctx
	kind := Classify(from, to)
	var err error
	switch kind {
	case TransitionLogin:
		err = c.onLogin(ctx, to)
	case TransitionLogout:
		err = c.onLogout(ctx, from)
	case TransitionSwitch:
		err = c.onSwitch(ctx, from, to)
	case TransitionNone:
		if retry && to.Present() && c.MergePending() {
			kind = TransitionLogin
			err = c.onLogin(ctx, to)
		}
	}

	c.mu.Lock()
	c.owner = to
	c.reconciling = false
	dirty := c.dirty
	c.dirty = make(map[domain.ResourceKind]bool)
	pending := c.mergePending
	if kind != TransitionNone {
		c.lastErr = err
	}
	c.mu.Unlock()

	if kind != TransitionNone {
		c.saveOwner(ctx, to, pending)
		c.recordTransition(ctx, kind, from, to, err)
	}

	if !to.Present() || pending {
		return
	}
	for _, res := range resources {
		if background || dirty[res] {
			c.schedulePush(to, res)
		}
	}
}

// onLogin merges local guest data with the remote collections of user. A
// non-empty remote wins and replaces local data; an empty remote adopts the
// local data through an upload.
func (c *Controller) onLogin(ctx context.Context, user domain.Identity) error {
	log := c.log.WithField("user_id", user.UserID)

	cart, wishlist, err := c.fetch(ctx, user.UserID)
	if err != nil {
		if c.policy == FetchFailureAbort {
			c.setMergePending(true)
			log.WithError(err).Warn("login merge aborted: remote fetch failed; local data kept, real-time sync suspended")
			return fmt.Errorf("%w: %v", ErrMergePending, err)
		}
		log.WithError(err).Warn("remote fetch failed; treating remote as empty")
		cart, wishlist = domain.CartPayload{}, domain.WishlistPayload{}
	}
	c.setMergePending(false)

	if len(cart.Items) > 0 || len(wishlist.ProductIDs) > 0 {
		log.WithFields(logrus.Fields{
			"remote_cart_lines":     len(cart.Items),
			"remote_wishlist_items": len(wishlist.ProductIDs),
		}).Info("remote state found; replacing local data")
		c.hydrate(ctx, cart, wishlist)
		return nil
	}

	if c.store.Empty() {
		return nil
	}
	log.Info("remote state empty; uploading local data")
	if err := c.pushAll(ctx, user.UserID); err != nil {
		log.WithError(err).Warn("initial upload failed")
		return err
	}
	return nil
}

// onLogout pushes the final local state for user and then clears the local
// stores whatever the outcome of the push. Nothing is pushed while a merge is
// pending, since local data was never reconciled with user's remote state.
func (c *Controller) onLogout(ctx context.Context, user domain.Identity) error {
	log := c.log.WithField("user_id", user.UserID)

	var err error
	if c.MergePending() {
		log.Warn("logout with login merge pending; discarding unsynced local data")
	} else if err = c.pushAll(ctx, user.UserID); err != nil {
		log.WithError(err).Warn("final push failed; clearing local data anyway")
	}

	c.store.ClearAs(c.origin)
	c.setMergePending(false)
	return err
}

func (c *Controller) onSwitch(ctx context.Context, from, to domain.Identity) error {
	logoutErr := c.onLogout(ctx, from)
	loginErr := c.onLogin(ctx, to)
	return errors.Join(logoutErr, loginErr)
}

// fetch reads both remote collections concurrently.
func (c *Controller) fetch(ctx context.Context, userID string) (domain.CartPayload, domain.WishlistPayload, error) {
	var cart domain.CartPayload
	var wishlist domain.WishlistPayload
	g, gctx := newGroup(ctx)
	g.Go(func() error {
		var err error
		cart, err = c.remote.FetchCart(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch cart: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		wishlist, err = c.remote.FetchWishlist(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch wishlist: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.CartPayload{}, domain.WishlistPayload{}, err
	}
	return cart, wishlist, nil
}

// pushAll pushes both collections for userID and waits for the pushes.
// Errors are collected, not retried.
func (c *Controller) pushAll(ctx context.Context, userID string) error {
	var mu sync.Mutex
	var errs []error
	for _, kind := range resources {
		kind := kind
		c.pushes[kind].Submit(func() {
			if err := c.push(ctx, userID, kind); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	for _, kind := range resources {
		if err := c.pushes[kind].Flush(ctx); err != nil {
			return err
		}
	}
	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}

// push replaces the remote collection with the current local one.
func (c *Controller) push(ctx context.Context, userID string, kind domain.ResourceKind) error {
	switch kind {
	case domain.ResourceCart:
		payload := domain.CartPayload{Items: domain.CartLines(c.store.Cart.Items())}
		if err := c.remote.ReplaceCart(ctx, userID, payload); err != nil {
			return fmt.Errorf("push cart: %w", err)
		}
	case domain.ResourceWishlist:
		payload := domain.WishlistPayload{ProductIDs: domain.ProductIDs(c.store.Wishlist.Items())}
		if err := c.remote.ReplaceWishlist(ctx, userID, payload); err != nil {
			return fmt.Errorf("push wishlist: %w", err)
		}
	}
	return nil
}

func (c *Controller) setMergePending(v bool) {
	c.mu.Lock()
	c.mergePending = v
	c.mu.Unlock()
}

func (c *Controller) saveOwner(ctx context.Context, owner domain.Identity, pending bool) {
	if c.storage == nil {
		return
	}
	var err error
	if owner.Present() {
		err = kv.SaveJSON(ctx, c.storage, OwnerKey, ownerRecord{UserID: owner.UserID, MergePending: pending})
	} else {
		err = c.storage.Remove(ctx, OwnerKey)
	}
	if err != nil {
		c.log.WithError(err).Warn("failed to persist sync owner")
	}
}

func (c *Controller) recordTransition(ctx context.Context, kind Transition, from, to domain.Identity, err error) {
	outcome := "ok"
	if err != nil {
		outcome = err.Error()
	}
	c.log.WithFields(logrus.Fields{
		"transition": kind.String(),
		"from":       from.String(),
		"to":         to.String(),
		"outcome":    outcome,
	}).Info("identity transition reconciled")
	if c.events == nil {
		return
	}
	if err := c.events.LogTransition(ctx, kind.String(), from, to, outcome); err != nil {
		c.log.WithError(err).Warn("failed to record transition")
	}
}
