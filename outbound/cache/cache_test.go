package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"
	"workshop-enrollment/model"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type CacheTestSuite struct {
	suite.Suite
	Cache     *redis.Client
	CacheMock redismock.ClientMock
}

func (s *CacheTestSuite) SetupTest() {
	s.Cache, s.CacheMock = redismock.NewClientMock()
}

func (s *CacheTestSuite) TearDownTest() {
	s.NoError(s.CacheMock.ExpectationsWereMet())
	s.Cache.Close()
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func (s *CacheTestSuite) TestCartStore() {
	store := CartStore{Cache: s.Cache, TTL: time.Hour}
	ctx := context.Background()

	cart := model.Cart{
		Key:       "cart:session:abc",
		Currency:  "EUR",
		Items:     []model.CartItem{{WorkshopID: 1, PricingOptionID: "standard", Price: 5000, Title: "Go"}},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	raw, err := json.Marshal(cart)
	s.Require().NoError(err)

	s.Run("save", func() {
		s.CacheMock.ExpectSet("cart:session:abc", raw, time.Hour).SetVal("OK")
		s.NoError(store.Save(ctx, cart))
	})

	s.Run("get refreshes expiry", func() {
		s.CacheMock.ExpectGet("cart:session:abc").SetVal(string(raw))
		s.CacheMock.ExpectExpire("cart:session:abc", time.Hour).SetVal(true)

		got, ok, err := store.Get(ctx, "cart:session:abc")
		s.NoError(err)
		s.True(ok)
		s.Equal("cart:session:abc", got.Key)
		s.Equal(cart.Items, got.Items)
		s.Equal("EUR", got.Currency)
	})

	s.Run("missing", func() {
		s.CacheMock.ExpectGet("cart:session:none").RedisNil()

		got, ok, err := store.Get(ctx, "cart:session:none")
		s.NoError(err)
		s.False(ok)
		s.Equal("cart:session:none", got.Key)
	})

	s.Run("unreadable document", func() {
		s.CacheMock.ExpectGet("cart:session:bad").SetVal("{not json")

		_, ok, err := store.Get(ctx, "cart:session:bad")
		s.NoError(err)
		s.False(ok)
	})

	s.Run("backend error", func() {
		s.CacheMock.ExpectGet("cart:session:abc").SetErr(redis.ErrClosed)

		_, _, err := store.Get(ctx, "cart:session:abc")
		s.ErrorIs(err, redis.ErrClosed)
	})

	s.Run("saving an empty cart deletes it", func() {
		s.CacheMock.ExpectDel("cart:session:abc").SetVal(1)
		s.NoError(store.Save(ctx, model.Cart{Key: "cart:session:abc"}))
	})
}

func (s *CacheTestSuite) TestDedupStore() {
	now := time.UnixMilli(1_700_000_000_000)
	store := DedupStore{Cache: s.Cache, Window: 1000, LockTTL: time.Minute, TimeNow: func() time.Time { return now }}
	ctx := context.Background()

	tests := []struct {
		name      string
		setupMock func()
		run       func() (bool, error)
		want      bool
		wantErr   bool
	}{
		{
			name: "unseen event",
			setupMock: func() {
				s.CacheMock.ExpectZScore("webhook:processed_events", "evt_1").RedisNil()
			},
			run:  func() (bool, error) { return store.Processed(ctx, "evt_1") },
			want: false,
		},
		{
			name: "seen event",
			setupMock: func() {
				s.CacheMock.ExpectZScore("webhook:processed_events", "evt_1").SetVal(float64(now.UnixMilli()))
			},
			run:  func() (bool, error) { return store.Processed(ctx, "evt_1") },
			want: true,
		},
		{
			name: "lookup error",
			setupMock: func() {
				s.CacheMock.ExpectZScore("webhook:processed_events", "evt_1").SetErr(redis.ErrClosed)
			},
			run:     func() (bool, error) { return store.Processed(ctx, "evt_1") },
			wantErr: true,
		},
		{
			name: "lock acquired",
			setupMock: func() {
				s.CacheMock.ExpectSetNX("webhook:event_lock:evt_1", "1", time.Minute).SetVal(true)
			},
			run:  func() (bool, error) { return store.Lock(ctx, "evt_1") },
			want: true,
		},
		{
			name: "lock held elsewhere",
			setupMock: func() {
				s.CacheMock.ExpectSetNX("webhook:event_lock:evt_1", "1", time.Minute).SetVal(false)
			},
			run:  func() (bool, error) { return store.Lock(ctx, "evt_1") },
			want: false,
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			tc.setupMock()

			got, err := tc.run()
			if tc.wantErr {
				s.Error(err)
				return
			}
			s.NoError(err)
			s.Equal(tc.want, got)
		})
	}
}

func (s *CacheTestSuite) TestDedupMarkProcessedTrimsWindow() {
	now := time.UnixMilli(1_700_000_000_000)
	store := DedupStore{Cache: s.Cache, Window: 3, TimeNow: func() time.Time { return now }}

	s.CacheMock.ExpectTxPipeline()
	s.CacheMock.ExpectZAdd("webhook:processed_events", redis.Z{Score: float64(now.UnixMilli()), Member: "evt_9"}).SetVal(1)
	s.CacheMock.ExpectZRemRangeByRank("webhook:processed_events", 0, -4).SetVal(1)
	s.CacheMock.ExpectTxPipelineExec()

	s.NoError(store.MarkProcessed(context.Background(), "evt_9"))
}

func (s *CacheTestSuite) TestDedupMarkProcessedPipelineError() {
	store := DedupStore{Cache: s.Cache, TimeNow: func() time.Time { return time.UnixMilli(5) }}

	s.CacheMock.ExpectTxPipeline()
	s.CacheMock.ExpectZAdd("webhook:processed_events", redis.Z{Score: 5, Member: "evt_1"}).SetVal(1)
	s.CacheMock.ExpectZRemRangeByRank("webhook:processed_events", 0, -1001).SetVal(0)
	s.CacheMock.ExpectTxPipelineExec().SetErr(redis.ErrClosed)

	s.Error(store.MarkProcessed(context.Background(), "evt_1"))
}

func (s *CacheTestSuite) TestClaimBindings() {
	bindings := ClaimBindings{Cache: s.Cache}
	ctx := context.Background()
	key := "claim:session:abc:workshop:4"

	s.CacheMock.ExpectSet(key, int64(12), time.Hour).SetVal("OK")
	s.NoError(bindings.Bind(ctx, "session:abc", 4, 12, time.Hour))

	s.CacheMock.ExpectGet(key).SetVal("12")
	entryID, ok, err := bindings.Lookup(ctx, "session:abc", 4)
	s.NoError(err)
	s.True(ok)
	s.Equal(int64(12), entryID)

	s.CacheMock.ExpectDel(key).SetVal(1)
	s.NoError(bindings.Release(ctx, "session:abc", 4))

	s.CacheMock.ExpectGet(key).RedisNil()
	_, ok, err = bindings.Lookup(ctx, "session:abc", 4)
	s.NoError(err)
	s.False(ok)
}

func (s *CacheTestSuite) TestLocker() {
	locker := Locker{Cache: s.Cache}
	ctx := context.Background()

	s.CacheMock.ExpectSetNX("waitlist:notify_lock:4", "1", 30*time.Second).SetVal(true)
	ok, err := locker.Acquire(ctx, "waitlist:notify_lock:4", 30*time.Second)
	s.NoError(err)
	s.True(ok)

	s.CacheMock.ExpectSetNX("waitlist:notify_lock:4", "1", 30*time.Second).SetErr(redis.ErrClosed)
	_, err = locker.Acquire(ctx, "waitlist:notify_lock:4", 30*time.Second)
	s.Error(err)

	s.CacheMock.ExpectDel("waitlist:notify_lock:4").SetVal(1)
	s.NoError(locker.Release(ctx, "waitlist:notify_lock:4"))
}
