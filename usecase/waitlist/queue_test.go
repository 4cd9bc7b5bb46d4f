package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/contract/mocks"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/model"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type memoryRepo struct {
	mu        sync.Mutex
	now       time.Time
	workshops map[int64]model.Workshop
	entries   []*model.WaitlistEntry
	nextID    int64
	// raceEmail simulates a concurrent join committing between the read and the insert.
	raceEmail string
}

func (r *memoryRepo) FindWorkshopByID(_ context.Context, id int64) (model.Workshop, error) {
	w, ok := r.workshops[id]
	if !ok {
		return model.Workshop{}, errs.ErrWorkshopNotFound
	}
	return w, nil
}

func (r *memoryRepo) FindActiveWaitlistEntry(_ context.Context, workshopID int64, email string) (model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.WorkshopID == workshopID && strings.EqualFold(e.Email, email) && !e.Status.Terminal() {
			return *e, nil
		}
	}
	return model.WaitlistEntry{}, errs.ErrEntryNotFound
}

func (r *memoryRepo) MaxWaitlistPosition(_ context.Context, workshopID int64) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max int32
	for _, e := range r.entries {
		if e.WorkshopID == workshopID && e.Position > max {
			max = e.Position
		}
	}
	return max, nil
}

func (r *memoryRepo) add(entry model.WaitlistEntry) *model.WaitlistEntry {
	r.nextID++
	entry.ID = r.nextID
	entry.CreatedAt = r.now.Add(time.Duration(r.nextID) * time.Second)
	if entry.Status == "" {
		entry.Status = model.WaitlistStatusWaiting
	}
	r.entries = append(r.entries, &entry)
	return &entry
}

func (r *memoryRepo) InsertWaitlistEntry(_ context.Context, entry *model.WaitlistEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raceEmail == entry.Email {
		r.raceEmail = ""
		r.add(model.WaitlistEntry{WorkshopID: entry.WorkshopID, Email: entry.Email, Name: entry.Name, Position: entry.Position})
		return false, nil
	}
	for _, e := range r.entries {
		if e.WorkshopID == entry.WorkshopID && strings.EqualFold(e.Email, entry.Email) && !e.Status.Terminal() {
			return false, nil
		}
	}
	stored := r.add(*entry)
	*entry = *stored
	return true, nil
}

func (r *memoryRepo) CountWaitingAhead(_ context.Context, workshopID int64, position int32) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, e := range r.entries {
		if e.WorkshopID == workshopID && e.Status == model.WaitlistStatusWaiting && e.Position < position {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) NextWaitingEntry(_ context.Context, workshopID int64) (model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var waiting []*model.WaitlistEntry
	for _, e := range r.entries {
		if e.WorkshopID == workshopID && e.Status == model.WaitlistStatusWaiting {
			waiting = append(waiting, e)
		}
	}
	if len(waiting) == 0 {
		return model.WaitlistEntry{}, errs.ErrEntryNotFound
	}
	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].Position != waiting[j].Position {
			return waiting[i].Position < waiting[j].Position
		}
		return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
	})
	return *waiting[0], nil
}

func (r *memoryRepo) entry(id int64) *model.WaitlistEntry {
	for _, e := range r.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (r *memoryRepo) MarkEntryNotified(_ context.Context, entryID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(entryID)
	if e == nil || e.Status != model.WaitlistStatusWaiting {
		return false, nil
	}
	e.Status = model.WaitlistStatusNotified
	e.NotifiedAt = &at
	return true, nil
}

func (r *memoryRepo) MarkEntryConverted(_ context.Context, entryID, enrollmentID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(entryID)
	if e == nil || e.Status == model.WaitlistStatusConverted {
		return false, nil
	}
	e.Status = model.WaitlistStatusConverted
	e.EnrollmentID = &enrollmentID
	return true, nil
}

func (r *memoryRepo) ExpireLapsedClaims(_ context.Context, now time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, e := range r.entries {
		if e.Status == model.WaitlistStatusNotified && e.ClaimExpiresAt != nil && e.ClaimExpiresAt.Before(now) {
			e.Status = model.WaitlistStatusExpired
			ids = append(ids, e.WorkshopID)
		}
	}
	return ids, nil
}

type stubTokens struct {
	repo  *memoryRepo
	count int
	err   error
}

func (t *stubTokens) Generate(_ context.Context, entryID int64) (string, time.Time, error) {
	if t.err != nil {
		return "", time.Time{}, t.err
	}
	t.count++
	expiresAt := t.repo.now.Add(48 * time.Hour)
	e := t.repo.entry(entryID)
	e.ClaimToken = fmt.Sprintf("token-%d", t.count)
	e.ClaimExpiresAt = &expiresAt
	return e.ClaimToken, expiresAt, nil
}

type recordingNotifier struct {
	sent []int64
	err  error
}

func (n *recordingNotifier) NotifyClaim(_ context.Context, entry model.WaitlistEntry, _ model.Workshop, _ string, _ time.Time) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, entry.ID)
	return nil
}

type memoryLock map[string]bool

func (l memoryLock) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	if l[key] {
		return false, nil
	}
	l[key] = true
	return true, nil
}

func (l memoryLock) Release(_ context.Context, key string) error {
	delete(l, key)
	return nil
}

type QueueTestSuite struct {
	suite.Suite
	repo     *memoryRepo
	tokens   *stubTokens
	notifier *recordingNotifier
	lock     memoryLock
	queue    Queue
}

func (s *QueueTestSuite) SetupTest() {
	s.repo = &memoryRepo{
		now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		workshops: map[int64]model.Workshop{
			1: {ID: 1, Title: "Pottery", Capacity: 3, Published: true, WaitlistEnabled: true, CheckoutEnabled: true},
			2: {ID: 2, Title: "Welding", Capacity: 3, Published: true, CheckoutEnabled: true},
			3: {ID: 3, Title: "Draft", Capacity: 3, WaitlistEnabled: true},
		},
	}
	s.tokens = &stubTokens{repo: s.repo}
	s.notifier = &recordingNotifier{}
	s.lock = memoryLock{}
	s.queue = Queue{
		Repo:     s.repo,
		Tokens:   s.tokens,
		Notifier: s.notifier,
		Lock:     s.lock,
		TimeNow:  func() time.Time { return s.repo.now },
	}
}

func TestQueueTestSuite(t *testing.T) {
	suite.Run(t, new(QueueTestSuite))
}

func (s *QueueTestSuite) join(email string) model.JoinWaitlistResponse {
	resp, err := s.queue.Join(context.Background(), 1, model.JoinWaitlistRequest{Email: email, Name: "Someone"})
	s.Require().NoError(err)
	return resp
}

func (s *QueueTestSuite) TestJoinAssignsPositions() {
	first := s.join("a@example.com")
	second := s.join("b@example.com")
	third := s.join("c@example.com")

	s.Equal(int32(1), first.Position)
	s.Equal(int32(2), second.Position)
	s.Equal(int32(3), third.Position)
	s.Equal(int64(0), first.WaitingAhead)
	s.Equal(int64(2), third.WaitingAhead)
}

func (s *QueueTestSuite) TestJoinIdempotent() {
	first := s.join("a@example.com")
	again := s.join("  A@Example.com ")

	s.Equal(first.EntryID, again.EntryID)
	s.Equal(first.Position, again.Position)
	s.Len(s.repo.entries, 1)
}

func (s *QueueTestSuite) TestJoinLosesRace() {
	s.repo.raceEmail = "a@example.com"

	resp := s.join("a@example.com")

	s.True(resp.Success)
	s.Len(s.repo.entries, 1)
	s.Equal(s.repo.entries[0].ID, resp.EntryID)
}

func (s *QueueTestSuite) TestJoinRejected() {
	testCases := []struct {
		name       string
		workshopID int64
		email      string
		expectErr  error
	}{
		{name: "waitlist disabled", workshopID: 2, email: "a@example.com", expectErr: errs.ErrWaitlistDisabled},
		{name: "unpublished", workshopID: 3, email: "a@example.com", expectErr: errs.ErrWorkshopNotFound},
		{name: "missing", workshopID: 99, email: "a@example.com", expectErr: errs.ErrWorkshopNotFound},
		{name: "invalid email", workshopID: 1, email: "not-an-email"},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.queue.Join(context.Background(), tc.workshopID, model.JoinWaitlistRequest{Email: tc.email, Name: "Someone"})
			s.Error(err)
			if tc.expectErr != nil {
				s.ErrorIs(err, tc.expectErr)
			}
		})
	}
	s.Empty(s.repo.entries)
}

func (s *QueueTestSuite) TestNotifyNextInLineSkipsConverted() {
	first := s.join("a@example.com")
	second := s.join("b@example.com")
	s.join("c@example.com")

	_, err := s.queue.Convert(context.Background(), second.EntryID, 40)
	s.Require().NoError(err)

	ok, err := s.queue.NotifyNextInLine(context.Background(), 1)
	s.Require().NoError(err)
	s.True(ok)

	s.Equal([]int64{first.EntryID}, s.notifier.sent)
	s.Equal(model.WaitlistStatusNotified, s.repo.entry(first.EntryID).Status)
	s.Equal(int32(1), s.repo.entry(first.EntryID).Position)
	s.Equal(int32(3), s.repo.entries[2].Position)
	s.Empty(s.lock)
}

func (s *QueueTestSuite) TestNotifyNextInLineEmpty() {
	ok, err := s.queue.NotifyNextInLine(context.Background(), 1)
	s.Require().NoError(err)
	s.False(ok)
	s.Empty(s.notifier.sent)
}

func (s *QueueTestSuite) TestNotifyNextInLineSendFailure() {
	entry := s.join("a@example.com")
	s.notifier.err = errors.New("queue down")

	ok, err := s.queue.NotifyNextInLine(context.Background(), 1)
	s.Error(err)
	s.False(ok)
	s.Equal(model.WaitlistStatusWaiting, s.repo.entry(entry.EntryID).Status)
}

func (s *QueueTestSuite) TestNotifyNextInLineTieBreak() {
	late := s.repo.add(model.WaitlistEntry{WorkshopID: 1, Email: "late@example.com", Position: 1})
	early := s.repo.add(model.WaitlistEntry{WorkshopID: 1, Email: "early@example.com", Position: 1})
	early.CreatedAt = late.CreatedAt.Add(-time.Minute)

	_, err := s.queue.NotifyNextInLine(context.Background(), 1)
	s.Require().NoError(err)
	s.Equal([]int64{early.ID}, s.notifier.sent)
}

func (s *QueueTestSuite) TestConvertIdempotent() {
	entry := s.join("a@example.com")

	changed, err := s.queue.Convert(context.Background(), entry.EntryID, 10)
	s.Require().NoError(err)
	s.True(changed)

	changed, err = s.queue.Convert(context.Background(), entry.EntryID, 10)
	s.Require().NoError(err)
	s.False(changed)
	s.Equal(model.WaitlistStatusConverted, s.repo.entry(entry.EntryID).Status)
}

func (s *QueueTestSuite) TestExpireLapsedClaims() {
	first := s.join("a@example.com")
	second := s.join("b@example.com")

	_, err := s.queue.NotifyNextInLine(context.Background(), 1)
	s.Require().NoError(err)

	s.repo.now = s.repo.now.Add(49 * time.Hour)
	notified, err := s.queue.ExpireLapsedClaims(context.Background())
	s.Require().NoError(err)

	s.Equal(1, notified)
	s.Equal(model.WaitlistStatusExpired, s.repo.entry(first.EntryID).Status)
	s.Equal(model.WaitlistStatusNotified, s.repo.entry(second.EntryID).Status)
	s.Equal([]int64{first.EntryID, second.EntryID}, s.notifier.sent)
}

func TestEmailNotifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)

	notifier := EmailNotifier{Publisher: publisher, ClaimURL: "https://workshops.example.com/api/waitlist/claim"}
	expiresAt := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

	publisher.EXPECT().Publish(gomock.Any(), constant.SubjectSendEmail, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
			var msg model.SendEmailEventMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if msg.To != "ada@example.com" {
				t.Errorf("to = %q", msg.To)
			}
			if !strings.Contains(msg.Body, "https://workshops.example.com/api/waitlist/claim?entry_id=7&waitlist_token=abc") {
				t.Errorf("claim link missing from body: %s", msg.Body)
			}
			if !strings.Contains(msg.Body, "2026-03-03 10:00:00") {
				t.Errorf("expiry missing from body: %s", msg.Body)
			}
			return nil, nil
		})

	err := notifier.NotifyClaim(context.Background(),
		model.WaitlistEntry{ID: 7, Email: "ada@example.com", Name: "Ada"},
		model.Workshop{Title: "Pottery"}, "abc", expiresAt)
	if err != nil {
		t.Fatalf("NotifyClaim: %v", err)
	}
}
