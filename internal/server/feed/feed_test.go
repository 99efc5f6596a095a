package feed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeed_DeliversToAllSubscribers(t *testing.T) {
	f := New[int]()

	var a, b []int
	f.Subscribe(func(v int) { a = append(a, v) })
	f.Subscribe(func(v int) { b = append(b, v) })

	f.Publish(1)
	f.Publish(2)

	assert.Equal(t, []int{1, 2}, a)
	assert.Equal(t, []int{1, 2}, b)
}

func TestFeed_ReplaysLastToLateSubscriber(t *testing.T) {
	f := New[string]()
	f.Publish("old")
	f.Publish("latest")

	var got []string
	f.Subscribe(func(v string) { got = append(got, v) })

	assert.Equal(t, []string{"latest"}, got)
}

func TestFeed_NoReplayBeforeFirstPublish(t *testing.T) {
	f := New[string]()

	called := false
	f.Subscribe(func(string) { called = true })

	assert.False(t, called)
	_, ok := f.Last()
	assert.False(t, ok)
}

func TestFeed_Unsubscribe(t *testing.T) {
	f := New[int]()

	var got []int
	unsubscribe := f.Subscribe(func(v int) { got = append(got, v) })
	f.Publish(1)

	unsubscribe()
	unsubscribe()
	f.Publish(2)

	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 0, f.Subscribers())
}

func TestFeed_ConcurrentPublishers(t *testing.T) {
	f := New[int]()

	var mu sync.Mutex
	count := 0
	f.Subscribe(func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			f.Publish(v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, count)
}
