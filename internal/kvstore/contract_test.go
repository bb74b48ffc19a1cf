package kvstore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// storeFactory возвращает свежее хранилище и функцию сдвига времени.
type storeFactory func(t *testing.T) (Store, func(time.Duration))

// runContract прогоняет одни и те же сценарии на любой реализации Store.
func runContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		s, _ := newStore(t)
		v, ok, err := s.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set with ttl expires", func(t *testing.T) {
		s, advance := newStore(t)
		require.NoError(t, s.Set(ctx, "k", "v", time.Second))
		require.NoError(t, s.Set(ctx, "forever", "v", 0))

		v, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", v)

		advance(2 * time.Second)
		_, ok, err = s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = s.Get(ctx, "forever")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incr and expire", func(t *testing.T) {
		s, advance := newStore(t)
		for i := int64(1); i <= 3; i++ {
			n, err := s.Incr(ctx, "c")
			require.NoError(t, err)
			assert.Equal(t, i, n)
		}
		require.NoError(t, s.Expire(ctx, "c", time.Second))
		advance(time.Second + time.Millisecond)
		n, err := s.Incr(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("incr on non integer fails", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Set(ctx, "c", "abc", 0))
		_, err := s.Incr(ctx, "c")
		assert.Error(t, err)
	})

	t.Run("incr window sets ttl on first increment only", func(t *testing.T) {
		s, advance := newStore(t)
		for i := int64(1); i <= 3; i++ {
			n, err := s.IncrWindow(ctx, "w", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, i, n)
			advance(10 * time.Second)
		}
		// окно отсчитывается от первого инкремента, а не продлевается
		advance(31 * time.Second)
		n, err := s.IncrWindow(ctx, "w", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("list commands", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.LPush(ctx, "l", "a", "b", "c"))

		all, err := s.LRange(ctx, "l", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b", "a"}, all)

		first, err := s.LRange(ctx, "l", 0, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, first)

		require.NoError(t, s.LTrim(ctx, "l", 0, 1))
		all, err = s.LRange(ctx, "l", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, all)

		empty, err := s.LRange(ctx, "missing", 0, -1)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("push trim keeps newest entries", func(t *testing.T) {
		s, _ := newStore(t)
		for i := 0; i < 8; i++ {
			require.NoError(t, s.PushTrim(ctx, "p", strconv.Itoa(i), 5))
		}
		all, err := s.LRange(ctx, "p", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"7", "6", "5", "4", "3"}, all)
	})

	t.Run("set members are distinct", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.SAdd(ctx, "s", "x", "y"))
		require.NoError(t, s.SAdd(ctx, "s", "x"))
		m, err := s.SMembers(ctx, "s")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"x", "y"}, m)

		ok, err := s.SIsMember(ctx, "s", "x")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.SRem(ctx, "s", "x"))
		ok, err = s.SIsMember(ctx, "s", "x")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.SIsMember(ctx, "missing", "x")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("update creates and overwrites", func(t *testing.T) {
		s, _ := newStore(t)
		err := s.Update(ctx, "u", func(cur string, exists bool) (string, bool, error) {
			assert.False(t, exists)
			return "1", true, nil
		})
		require.NoError(t, err)

		err = s.Update(ctx, "u", func(cur string, exists bool) (string, bool, error) {
			assert.True(t, exists)
			assert.Equal(t, "1", cur)
			return "2", true, nil
		})
		require.NoError(t, err)

		v, _, err := s.Get(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, "2", v)
	})

	t.Run("update without write leaves value", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Set(ctx, "u", "keep", 0))
		err := s.Update(ctx, "u", func(string, bool) (string, bool, error) {
			return "changed", false, nil
		})
		require.NoError(t, err)
		v, _, err := s.Get(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, "keep", v)
	})

	t.Run("update propagates callback error", func(t *testing.T) {
		s, _ := newStore(t)
		boom := errors.New("boom")
		err := s.Update(ctx, "u", func(string, bool) (string, bool, error) {
			return "", true, boom
		})
		assert.ErrorIs(t, err, boom)
		_, ok, _ := s.Get(ctx, "u")
		assert.False(t, ok)
	})

	t.Run("members expire individually", func(t *testing.T) {
		s, advance := newStore(t)
		require.NoError(t, s.TouchMember(ctx, "z", "old", time.Hour))
		advance(30 * time.Minute)
		require.NoError(t, s.TouchMember(ctx, "z", "new", time.Hour))
		require.NoError(t, s.TouchMember(ctx, "z", "new", time.Hour))

		live, err := s.LiveMembers(ctx, "z")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"old", "new"}, live)

		advance(31 * time.Minute)
		live, err = s.LiveMembers(ctx, "z")
		require.NoError(t, err)
		assert.Equal(t, []string{"new"}, live)
	})

	t.Run("del", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Set(ctx, "a", "1", 0))
		require.NoError(t, s.Set(ctx, "b", "1", 0))
		require.NoError(t, s.Del(ctx, "a", "b"))
		_, ok, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ping", func(t *testing.T) {
		s, _ := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
