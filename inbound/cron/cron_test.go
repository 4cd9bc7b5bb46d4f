package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"testing"
	"time"
	"workshop-enrollment/common/vars"
	"workshop-enrollment/model"
	"workshop-enrollment/outbound/repository"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
)

type CronTestSuite struct {
	suite.Suite

	Querier *repository.Queries
	PgxMock pgxmock.PgxPoolIface

	Cfg *viper.Viper
}

func (s *CronTestSuite) SetupTest() {
	pool, err := pgxmock.NewPool()
	if err != nil {
		s.T().Fatalf("failed to create pgxmock pool: %v", err)
	}

	s.PgxMock = pool
	s.Querier = repository.New(pool)

	s.Cfg = viper.New()
	s.Cfg.Set("cron.workshop.refresh.interval", "5s")
	s.Cfg.Set("cron.workshop.refresh.timeout", "10s")
	s.Cfg.Set("cron.waitlist.sweep.interval", "1m")
	s.Cfg.Set("cron.waitlist.sweep.timeout", "10s")

	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func (s *CronTestSuite) TearDownTest() {
	s.PgxMock.Close()
	vars.SetWorkshops(nil)
}

func TestCronTestSuite(t *testing.T) {
	suite.Run(t, new(CronTestSuite))
}

var availabilityQuery = regexp.QuoteMeta("SELECT w.id, w.title, w.capacity, w.waitlist_enabled")

func (s *CronTestSuite) TestRefresh() {
	tests := []struct {
		name           string
		seed           []model.WorkshopAvailability
		setupMock      func()
		expectedResult []model.WorkshopAvailability
	}{
		{
			name: "database error keeps the previous snapshot",
			seed: []model.WorkshopAvailability{{ID: 1, Title: "Old", Capacity: 5, Remaining: 5}},
			setupMock: func() {
				s.PgxMock.ExpectQuery(availabilityQuery).WillReturnError(fmt.Errorf("database error"))
			},
			expectedResult: []model.WorkshopAvailability{{ID: 1, Title: "Old", Capacity: 5, Remaining: 5}},
		},
		{
			name: "success",
			setupMock: func() {
				s.PgxMock.ExpectQuery(availabilityQuery).
					WillReturnRows(pgxmock.NewRows([]string{"id", "title", "capacity", "waitlist_enabled", "completed"}).
						AddRow(int64(1), "Go in Production", int32(10), true, int64(4)).
						AddRow(int64(2), "Open Lab", int32(0), false, int64(12)))
			},
			expectedResult: []model.WorkshopAvailability{
				{ID: 1, Title: "Go in Production", Capacity: 10, Completed: 4, Remaining: 6, WaitlistEnabled: true},
				{ID: 2, Title: "Open Lab", Capacity: 0, Completed: 12, Unlimited: true},
			},
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			vars.SetWorkshops(tc.seed)
			tc.setupMock()

			WorkshopCron{Cfg: s.Cfg, Querier: s.Querier}.refresh(context.Background())

			s.Equal(tc.expectedResult, vars.GetWorkshops())
			s.NoError(s.PgxMock.ExpectationsWereMet())
		})
	}
}

func (s *CronTestSuite) TestStartStopsOnCancel() {
	s.PgxMock.ExpectQuery(availabilityQuery).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "capacity", "waitlist_enabled", "completed"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		WorkshopCron{Cfg: s.Cfg, Querier: s.Querier}.Start(ctx)
		close(done)
	}()

	s.Eventually(func() bool { return s.PgxMock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("workshop cron did not stop")
	}
}

type countingExpirer struct {
	calls   int
	expired int
	err     error
}

func (c *countingExpirer) ExpireLapsedClaims(context.Context) (int, error) {
	c.calls++
	return c.expired, c.err
}

func (s *CronTestSuite) TestWaitlistSweep() {
	expirer := &countingExpirer{expired: 2}
	waitlistCron := WaitlistCron{Cfg: s.Cfg, Waitlist: expirer}

	waitlistCron.sweep(context.Background())
	s.Equal(1, expirer.calls)

	expirer.err = errors.New("partial failure")
	waitlistCron.sweep(context.Background())
	s.Equal(2, expirer.calls)
}

func (s *CronTestSuite) TestWaitlistCronDisabledByDefault() {
	expirer := &countingExpirer{}
	waitlistCron := WaitlistCron{Cfg: s.Cfg, Waitlist: expirer}

	s.False(waitlistCron.Enabled())
	// Returns immediately instead of ticking.
	waitlistCron.Start(context.Background())
	s.Zero(expirer.calls)
}
