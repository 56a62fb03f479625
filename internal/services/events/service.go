package eventsvc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rzbill/evbus/internal/authz"
	"github.com/rzbill/evbus/internal/events"
	"github.com/rzbill/evbus/internal/eventqueue"
	"github.com/rzbill/evbus/internal/filter"
	"github.com/rzbill/evbus/internal/runtime"
	"github.com/rzbill/evbus/pkg/id"
	logpkg "github.com/rzbill/evbus/pkg/log"
)

// Service drives event streams and publishes on top of the runtime's
// registry and broadcaster.
type Service struct {
	rt              *runtime.Runtime
	logger          logpkg.Logger
	waitTimeout     time.Duration
	maxFilterLength int
	costLimit       uint64
	// onState observes stream state transitions. Tests only.
	onState func(State)
}

// New returns a Service using the runtime logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, nil)
}

// NewWithLogger returns a Service using the provided logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = rt.Logger()
	}
	ev := rt.Config().Events
	s := &Service{
		rt:              rt,
		logger:          logger.WithComponent("events"),
		waitTimeout:     ev.WaitTimeout(),
		maxFilterLength: ev.MaxFilterLength,
		costLimit:       ev.FilterCostLimit,
	}
	if s.waitTimeout <= 0 {
		s.waitTimeout = 5 * time.Second
	}
	return s
}

func (s *Service) enter(st State) {
	if s.onState != nil {
		s.onState(st)
	}
}

type validated struct {
	types []string
	pred  *filter.Predicate
}

// validate checks req without touching any queue.
func (s *Service) validate(user *authz.User, req SubscribeRequest) (*validated, error) {
	if req.LegacyProtocol {
		return nil, badRequest("HTTP/1.0 not supported for event streams", nil)
	}
	if len(req.Types) == 0 {
		return nil, badRequest("'types' parameter is required", nil)
	}
	for _, t := range req.Types {
		if t == "" {
			return nil, badRequest("'types' must not contain empty entries", nil)
		}
		if err := authz.Check(user, authz.EventsScope(t)); err != nil {
			return nil, badRequest(fmt.Sprintf("missing permission: %s", authz.EventsScope(t)), err)
		}
	}
	if req.Queue == "" {
		return nil, badRequest("'queue' parameter is required", nil)
	}
	v := &validated{types: append([]string(nil), req.Types...)}
	if req.Filter != "" {
		if s.maxFilterLength > 0 && len(req.Filter) > s.maxFilterLength {
			return nil, badRequest(fmt.Sprintf("'filter' exceeds %d characters", s.maxFilterLength), nil)
		}
		pred, err := filter.Compile(req.Filter, filter.WithCostLimit(s.costLimit))
		if err != nil {
			return nil, badRequest("invalid filter", err)
		}
		v.pred = pred
	}
	return v, nil
}

// Subscribe runs one event stream until the sink's context is done or a
// write fails. Validation failures are returned as *RequestError before
// the sink is started. The subscriber is always withdrawn on return.
func (s *Service) Subscribe(user *authz.User, req SubscribeRequest, sink Sink) error {
	s.enter(StateValidating)
	v, err := s.validate(user, req)
	if err != nil {
		s.enter(StateTerminated)
		return err
	}

	s.enter(StateProvisioning)
	reg := s.rt.Registry()
	cid := s.rt.NextClientID()
	q := reg.Acquire(req.Queue, cid, v.types, v.pred)
	logger := s.logger.With(logpkg.Queue(req.Queue), logpkg.Str(logpkg.ClientKey, cid.String()))
	if user != nil {
		logger = logger.With(logpkg.Str("user", user.Name))
	}
	logger.Info("subscriber connected", logpkg.Any("types", v.types), logpkg.Str("filter", v.pred.String()))

	defer func() {
		q.RemoveClient(cid)
		removed := reg.UnregisterIfUnused(req.Queue, q)
		s.enter(StateTerminated)
		logger.Info("subscriber disconnected", logpkg.Bool("queue_removed", removed))
	}()

	if err := sink.Start(); err != nil {
		return err
	}
	s.enter(StateStreaming)
	return s.stream(sink, q, cid, logger)
}

// stream is the send loop. A wait that returns nothing while the peer is
// still connected is simply retried; the wait itself suspends on new data
// or disconnect.
func (s *Service) stream(sink Sink, q *eventqueue.Queue, cid id.ID, logger logpkg.Logger) error {
	ctx := sink.Context()
	sent := 0
	for {
		ev, ok := q.WaitForEventContext(ctx, cid, s.waitTimeout)
		if !ok {
			if ctx.Err() != nil {
				logger.Debug("stream closed by peer", logpkg.Int("sent", sent))
				return nil
			}
			continue
		}
		if err := sink.Send(ev); err != nil {
			logger.Warn("stream write failed", logpkg.Err(err))
			return err
		}
		if err := sink.Flush(); err != nil {
			logger.Warn("stream flush failed", logpkg.Err(err))
			return err
		}
		sent++
	}
}

// Publish decodes data (one event object or an array of them), checks the
// publish scope of every event and hands them to the broadcaster. Nothing
// is published unless every event passes.
func (s *Service) Publish(ctx context.Context, user *authz.User, data []byte) (int, error) {
	evs, err := events.DecodeMany(data)
	if err != nil {
		return 0, badRequest("invalid event payload", err)
	}
	for _, ev := range evs {
		if err := authz.Check(user, authz.PublishScope(ev.Type())); err != nil {
			return 0, &RequestError{Status: http.StatusForbidden, Message: fmt.Sprintf("missing permission: %s", authz.PublishScope(ev.Type())), Err: err}
		}
	}
	for _, ev := range evs {
		s.rt.Broadcaster().Publish(ctx, ev)
	}
	return len(evs), nil
}

// PublishEvent publishes one already-decoded event.
func (s *Service) PublishEvent(ctx context.Context, user *authz.User, ev *events.Event) error {
	if err := authz.Check(user, authz.PublishScope(ev.Type())); err != nil {
		return &RequestError{Status: http.StatusForbidden, Message: fmt.Sprintf("missing permission: %s", authz.PublishScope(ev.Type())), Err: err}
	}
	s.rt.Broadcaster().Publish(ctx, ev)
	return nil
}

// ListQueues describes every registered queue.
func (s *Service) ListQueues(user *authz.User) ([]QueueInfo, error) {
	if err := checkList(user); err != nil {
		return nil, err
	}
	qs := s.rt.Registry().GetAll()
	out := make([]QueueInfo, 0, len(qs))
	for _, q := range qs {
		out = append(out, describe(q))
	}
	return out, nil
}

// GetQueue describes one queue.
func (s *Service) GetQueue(user *authz.User, name string) (QueueInfo, error) {
	if err := checkList(user); err != nil {
		return QueueInfo{}, err
	}
	q := s.rt.Registry().GetByName(name)
	if q == nil {
		return QueueInfo{}, &RequestError{Status: http.StatusNotFound, Message: fmt.Sprintf("queue %q not found", name), Err: ErrQueueNotFound}
	}
	return describe(q), nil
}

func checkList(user *authz.User) error {
	if err := authz.Check(user, authz.QueuesListScope); err != nil {
		return &RequestError{Status: http.StatusForbidden, Message: "missing permission: " + authz.QueuesListScope, Err: err}
	}
	return nil
}

func describe(q *eventqueue.Queue) QueueInfo {
	return QueueInfo{
		Name:        q.Name(),
		Types:       q.Types(),
		Filter:      q.FilterText(),
		Subscribers: q.ClientCount(),
	}
}
