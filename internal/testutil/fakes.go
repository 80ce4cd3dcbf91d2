package testutil

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SentEmail is one call recorded by FakeNotifier.
type SentEmail struct {
	To       string
	Template string
	Data     any
}

// FakeNotifier records sends and fails for recipients marked with FailFor.
type FakeNotifier struct {
	mu       sync.Mutex
	fail     map[string]bool
	attempts map[string]int
	sent     []SentEmail
}

func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{fail: map[string]bool{}, attempts: map[string]int{}}
}

// FailFor makes every send to the given addresses return an smtp error.
func (n *FakeNotifier) FailFor(emails ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range emails {
		n.fail[e] = true
	}
}

func (n *FakeNotifier) Send(ctx context.Context, to, template string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts[to]++
	if n.fail[to] {
		return errors.New("smtp: 450 mailbox unavailable")
	}
	n.sent = append(n.sent, SentEmail{To: to, Template: template, Data: data})
	return nil
}

// Sent returns the successful sends in call order.
func (n *FakeNotifier) Sent() []SentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentEmail(nil), n.sent...)
}

// Attempts returns how many times to was tried.
func (n *FakeNotifier) Attempts(to string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attempts[to]
}

// PublishedEvent is one call recorded by FakePublisher.
type PublishedEvent struct {
	Topic   string
	Payload any
}

type FakePublisher struct {
	mu     sync.Mutex
	Err    error
	events []PublishedEvent
}

func (p *FakePublisher) Publish(ctx context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, PublishedEvent{Topic: topic, Payload: payload})
	return nil
}

func (p *FakePublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedEvent(nil), p.events...)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
