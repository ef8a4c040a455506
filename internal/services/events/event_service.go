package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merces/internal/common"
	"github.com/ternarybob/merces/internal/interfaces"
)

// Service implements EventService with a pub/sub pattern. Subscriptions
// carry a token so a handler can be removed without comparing function
// values.
type Service struct {
	subscribers map[interfaces.EventType]map[uint64]interfaces.EventHandler
	nextToken   uint64
	mu          sync.RWMutex
	logger      arbor.ILogger
}

type subscription struct {
	service   *Service
	eventType interfaces.EventType
	token     uint64
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType]map[uint64]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type and returns a
// subscription handle used to remove it.
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) (interfaces.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers[eventType] == nil {
		s.subscribers[eventType] = make(map[uint64]interfaces.EventHandler)
	}

	s.nextToken++
	token := s.nextToken
	s.subscribers[eventType][token] = handler

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return &subscription{service: s, eventType: eventType, token: token}, nil
}

// Unsubscribe removes the handler this subscription registered. Safe to
// call more than once.
func (sub *subscription) Unsubscribe() {
	s := sub.service

	s.mu.Lock()
	defer s.mu.Unlock()

	handlers := s.subscribers[sub.eventType]
	if handlers == nil {
		return
	}
	if _, ok := handlers[sub.token]; !ok {
		return
	}

	delete(handlers, sub.token)

	s.logger.Debug().
		Str("event_type", string(sub.eventType)).
		Int("subscriber_count", len(handlers)).
		Msg("Event handler unsubscribed")
}

func (s *Service) handlersFor(eventType interfaces.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handlers := make([]interfaces.EventHandler, 0, len(s.subscribers[eventType]))
	for _, h := range s.subscribers[eventType] {
		handlers = append(handlers, h)
	}
	return handlers
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlersFor(event.Type)

	if len(handlers) == 0 {
		return nil
	}

	s.logger.Debug().
		Str("event_type", string(event.Type)).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing event")

	for _, handler := range handlers {
		h := handler
		common.SafeGo(s.logger, "event:"+string(event.Type), func() {
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		})
	}

	return nil
}

// PublishSync sends an event to all subscribers and waits for them all
// to finish before returning.
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlersFor(event.Type)

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
				errChan <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed: %d errors", len(errs))
	}

	return nil
}

// Close drops all subscriptions.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.EventType]map[uint64]interfaces.EventHandler)
	s.logger.Info().Msg("Event service closed")

	return nil
}
