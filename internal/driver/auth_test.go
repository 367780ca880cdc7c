package driver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticAuthorizer(t *testing.T) {
	a := NewStaticAuthorizer([]string{"Alice", " bob "})
	assert.True(t, a.IsChair("alice"))
	assert.True(t, a.IsChair("BOB"))
	assert.False(t, a.IsChair("mallory"))

	_, _, ok := a.HandleNotice("NickServ", "alice ACC 3")
	assert.False(t, ok)
}

type sentLine struct{ target, text string }

func TestNickServAuthorizer(t *testing.T) {
	var sent []sentLine
	send := func(target, text string) error {
		sent = append(sent, sentLine{target, text})
		return nil
	}
	a := NewNickServAuthorizer(send, "", []string{"Alice", "bob"})

	t.Run("asks services about configured chairs only", func(t *testing.T) {
		a.Verify("ALICE")
		a.Verify("mallory")
		require.Len(t, sent, 1)
		assert.Equal(t, sentLine{"NickServ", "ACC Alice"}, sent[0])

		sent = nil
		a.VerifyAll()
		assert.Len(t, sent, 2)
	})

	t.Run("nobody is a chair until confirmed", func(t *testing.T) {
		assert.False(t, a.IsChair("alice"))
	})

	t.Run("status 3 grants", func(t *testing.T) {
		nick, granted, ok := a.HandleNotice("NickServ", "Alice ACC 3")
		assert.True(t, ok)
		assert.True(t, granted)
		assert.Equal(t, "Alice", nick)
		assert.True(t, a.IsChair("alice"))

		_, _, ok = a.HandleNotice("NickServ", "Alice ACC 3")
		assert.False(t, ok, "no change the second time")
	})

	t.Run("atheme form", func(t *testing.T) {
		_, granted, ok := a.HandleNotice("nickserv", "bob -> bob ACC 3")
		assert.True(t, ok)
		assert.True(t, granted)
		assert.True(t, a.IsChair("bob"))
	})

	t.Run("lower status revokes", func(t *testing.T) {
		_, granted, ok := a.HandleNotice("NickServ", "alice ACC 1")
		assert.True(t, ok)
		assert.False(t, granted)
		assert.False(t, a.IsChair("alice"))
	})

	t.Run("ignores other senders and strangers", func(t *testing.T) {
		_, _, ok := a.HandleNotice("mallory", "mallory ACC 3")
		assert.False(t, ok)
		_, _, ok = a.HandleNotice("NickServ", "mallory ACC 3")
		assert.False(t, ok)
		assert.False(t, a.IsChair("mallory"))
	})
}

func TestWorkerRunsJobsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	posts := make(chan func(), 16)
	w := newWorker(func(f func()) { posts <- f })
	go w.run(ctx)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		w.submit(job{
			work: func(context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, i)
				return nil
			},
			then: func(error) {},
		})
	}

	for i := 0; i < 5; i++ {
		select {
		case f := <-posts:
			f()
		case <-time.After(time.Second):
			t.Fatal("continuation was never posted")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
