package view

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeDo(t *testing.T) {
	s := NewScope()
	ran := false
	assert.True(t, s.Do(func() { ran = true }))
	assert.True(t, ran)

	s.Close()
	ran = false
	assert.False(t, s.Do(func() { ran = true }))
	assert.False(t, ran)
	assert.False(t, s.Alive())
}

func TestScopeAfterFires(t *testing.T) {
	s := NewScope()
	defer s.Close()

	fired := make(chan struct{})
	s.After(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestScopeCloseCancelsTimers(t *testing.T) {
	s := NewScope()

	fired := make(chan struct{}, 1)
	s.After(50*time.Millisecond, func() { fired <- struct{}{} })
	s.Close()

	select {
	case <-fired:
		t.Fatal("timer fired after scope closed")
	case <-time.After(150 * time.Millisecond):
	}

	// After on a closed scope is a no-op.
	s.After(time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
		t.Fatal("timer scheduled on closed scope fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScopeCloseIdempotent(t *testing.T) {
	s := NewScope()
	s.Close()
	s.Close()
	assert.False(t, s.Alive())
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	values []any
	err    error
}

func (p *recordingPublisher) Publish(topic string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.values = append(p.values, v)
	return p.err
}

func TestBusNotifier(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewBusNotifier(pub, nil)

	n.Notify(Success("Success", "Product successfully created!", 3*time.Second))

	require.Len(t, pub.topics, 1)
	assert.Equal(t, NoticeTopic, pub.topics[0])
	notice, ok := pub.values[0].(Notice)
	require.True(t, ok)
	assert.Equal(t, NoticeSuccess, notice.Kind)
	assert.Equal(t, "Product successfully created!", notice.Message)
	assert.Equal(t, 3*time.Second, notice.Duration)
}

func TestBusNotifierPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("closed")}
	n := NewBusNotifier(pub, nil)

	assert.NotPanics(t, func() { n.Notify(Error("Error", "boom")) })
}

func TestNoticeBuilders(t *testing.T) {
	assert.Equal(t, Notice{Kind: NoticeInfo, Title: "Info", Message: "m", Duration: time.Second}, Info("Info", "m", time.Second))
	assert.Equal(t, Notice{Kind: NoticeError, Title: "Error", Message: "m"}, Error("Error", "m"))
}
