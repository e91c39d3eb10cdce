// Package memstore is an in-memory stand-in for db.Store used by service and handler tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/db"
	"github.com/Spok95/learning-platform/internal/models"
)

type pair struct{ teacher, student int64 }

type earningsKey struct {
	teacher     int64
	month, year int
}

type Store struct {
	mu sync.Mutex

	nextID      int64
	users       map[int64]models.User
	packages    map[int64]models.Package
	subs        map[int64]models.Subscription
	sessions    map[int64]models.ClassSession
	assignments map[pair]time.Time
	earnings    map[earningsKey]models.TeacherEarnings

	// Writes counts every mutating call that succeeded.
	Writes int
	// FailCompleteAfterSession makes CompleteSession fail after the session update,
	// so tests can check the transaction rolls back as a whole.
	FailCompleteAfterSession bool
}

func New() *Store {
	return &Store{
		users:       map[int64]models.User{},
		packages:    map[int64]models.Package{},
		subs:        map[int64]models.Subscription{},
		sessions:    map[int64]models.ClassSession{},
		assignments: map[pair]time.Time{},
		earnings:    map[earningsKey]models.TeacherEarnings{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email already registered: %w", apperr.ErrConflict)
		}
	}
	u.ID = s.id()
	u.CreatedAt = time.Now()
	s.users[u.ID] = *u
	s.Writes++
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", apperr.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user: %w", apperr.ErrNotFound)
}

func (s *Store) AssignStudent(_ context.Context, teacherID, studentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[pair{teacherID, studentID}]; !ok {
		s.assignments[pair{teacherID, studentID}] = time.Now()
		s.Writes++
	}
	return nil
}

func (s *Store) UnassignStudent(_ context.Context, teacherID, studentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[pair{teacherID, studentID}]; !ok {
		return fmt.Errorf("assignment: %w", apperr.ErrNotFound)
	}
	delete(s.assignments, pair{teacherID, studentID})
	s.Writes++
	return nil
}

func (s *Store) IsAssigned(_ context.Context, teacherID, studentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.assignments[pair{teacherID, studentID}]
	return ok, nil
}

func (s *Store) ListStudentsForTeacher(_ context.Context, teacherID int64) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.User{}
	for p := range s.assignments {
		if p.teacher == teacherID {
			out = append(out, s.users[p.student])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

// --- packages ---

func (s *Store) CreatePackage(_ context.Context, p *models.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	p.CreatedAt = time.Now()
	s.packages[p.ID] = *p
	s.Writes++
	return nil
}

func (s *Store) GetPackage(_ context.Context, id int64) (*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return nil, fmt.Errorf("package: %w", apperr.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) ListPackages(_ context.Context) ([]models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Package{}
	for _, p := range s.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- subscriptions ---

func (s *Store) GetActiveSubscription(_ context.Context, userID int64) (*models.SubscriptionWithPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Status == models.SubscriptionActive {
			return &models.SubscriptionWithPackage{Subscription: sub, Package: s.packages[sub.PackageID]}, nil
		}
	}
	return nil, fmt.Errorf("active subscription: %w", apperr.ErrNotFound)
}

func (s *Store) GetSubscription(_ context.Context, id int64) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription: %w", apperr.ErrNotFound)
	}
	return &sub, nil
}

func (s *Store) ListSubscriptionsByUser(_ context.Context, userID int64) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Subscription{}
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ListSubscriptionsByStatus(_ context.Context, statuses ...models.SubscriptionStatus) ([]models.SubscriptionWithPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.SubscriptionWithPackage{}
	for _, sub := range s.subs {
		for _, st := range statuses {
			if sub.Status == st {
				out = append(out, models.SubscriptionWithPackage{Subscription: sub, Package: s.packages[sub.PackageID]})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutSubscription stores sub as-is, for seeding. It does not count as a write.
func (s *Store) PutSubscription(sub *models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == 0 {
		sub.ID = s.id()
	}
	s.subs[sub.ID] = *sub
}

func (s *Store) ActivateSubscription(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.subs {
		if existing.UserID == sub.UserID && existing.Status == models.SubscriptionActive {
			existing.Status = models.SubscriptionExpired
			s.subs[id] = existing
		}
	}
	sub.Status = models.SubscriptionActive
	s.insertSub(sub)
	s.Writes++
	return nil
}

func (s *Store) RenewSubscription(_ context.Context, oldID int64, next *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.subs[oldID]
	if !ok || old.Status != models.SubscriptionActive {
		return fmt.Errorf("subscription %d is not active: %w", oldID, apperr.ErrConflict)
	}
	old.Status = models.SubscriptionExpired
	s.subs[oldID] = old
	next.Status = models.SubscriptionActive
	s.insertSub(next)
	s.Writes++
	return nil
}

func (s *Store) insertSub(sub *models.Subscription) {
	sub.ID = s.id()
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt
	s.subs[sub.ID] = *sub
}

func (s *Store) CancelSubscription(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok || sub.Status != models.SubscriptionActive {
		return fmt.Errorf("active subscription %d: %w", id, apperr.ErrNotFound)
	}
	sub.Status = models.SubscriptionCancelled
	sub.AutoRenew = false
	if sub.EndDate == nil {
		sub.EndDate = &at
	}
	s.subs[id] = sub
	s.Writes++
	return nil
}

func (s *Store) FindSubscriptionByStripeID(_ context.Context, stripeID string, statuses ...models.SubscriptionStatus) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.newestByStripeID(stripeID, func(st models.SubscriptionStatus) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if st == want {
				return true
			}
		}
		return false
	})
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", stripeID, apperr.ErrNotFound)
	}
	return &sub, nil
}

func (s *Store) UpdateSubscriptionStatusByStripeID(_ context.Context, stripeID string, status models.SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.newestByStripeID(stripeID, func(st models.SubscriptionStatus) bool {
		return st != models.SubscriptionExpired && st != models.SubscriptionCancelled
	})
	if !ok {
		return fmt.Errorf("subscription %s: %w", stripeID, apperr.ErrNotFound)
	}
	if status == models.SubscriptionActive {
		for id, other := range s.subs {
			if id != sub.ID && other.UserID == sub.UserID && other.Status == models.SubscriptionActive {
				return fmt.Errorf("user already has another active subscription: %w", apperr.ErrConflict)
			}
		}
	}
	sub.Status = status
	sub.UpdatedAt = time.Now()
	s.subs[sub.ID] = sub
	s.Writes++
	return nil
}

// newestByStripeID mirrors the store's ordering: latest start date, then highest id.
func (s *Store) newestByStripeID(stripeID string, match func(models.SubscriptionStatus) bool) (models.Subscription, bool) {
	var best models.Subscription
	found := false
	for _, sub := range s.subs {
		if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID != stripeID || !match(sub.Status) {
			continue
		}
		if !found || sub.StartDate.After(best.StartDate) || (sub.StartDate.Equal(best.StartDate) && sub.ID > best.ID) {
			best, found = sub, true
		}
	}
	return best, found
}

// --- sessions ---

func (s *Store) CreateSession(_ context.Context, cs *models.ClassSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs.ID = s.id()
	cs.CreatedAt = time.Now()
	cs.UpdatedAt = cs.CreatedAt
	s.sessions[cs.ID] = *cs
	s.Writes++
	return nil
}

// PutSession stores cs as-is, for seeding. It does not count as a write.
func (s *Store) PutSession(cs *models.ClassSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.ID == 0 {
		cs.ID = s.id()
	}
	s.sessions[cs.ID] = *cs
}

func (s *Store) CountSessions(_ context.Context, studentID, teacherID int64, statuses []models.SessionStatus, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, cs := range s.sessions {
		if cs.StudentID != studentID || cs.TeacherID != teacherID {
			continue
		}
		if cs.StartTime.Before(from) || cs.StartTime.After(to) {
			continue
		}
		for _, st := range statuses {
			if cs.Status == st {
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *Store) FindInProgress(_ context.Context, studentID, teacherID int64) (*models.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.ClassSession
	for _, cs := range s.sessions {
		if cs.StudentID == studentID && cs.TeacherID == teacherID && cs.Status == models.SessionInProgress {
			if best == nil || cs.StartTime.After(best.StartTime) {
				cs := cs
				best = &cs
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("in-progress session: %w", apperr.ErrNotFound)
	}
	return best, nil
}

func (s *Store) GetSession(_ context.Context, id int64) (*models.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session: %w", apperr.ErrNotFound)
	}
	return &cs, nil
}

func (s *Store) CompleteSession(_ context.Context, c models.SessionCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[c.SessionID]
	if !ok || cs.Status != models.SessionInProgress {
		return fmt.Errorf("in-progress session %d: %w", c.SessionID, apperr.ErrNotFound)
	}
	if s.FailCompleteAfterSession {
		// nothing has been applied yet, mirroring a rolled back transaction
		return fmt.Errorf("bump classes_completed: injected failure")
	}

	end := c.EndTime
	cs.Status = models.SessionCompleted
	cs.EndTime = &end
	cs.DurationMinutes = c.DurationMinutes
	cs.Earning = c.Earning
	if c.Notes != nil {
		cs.Notes = c.Notes
	}
	cs.UpdatedAt = time.Now()
	s.sessions[cs.ID] = cs

	if sub, ok := s.subs[c.SubscriptionID]; ok {
		sub.ClassesCompleted++
		s.subs[sub.ID] = sub
	}

	k := earningsKey{c.TeacherID, int(c.EndTime.Month()), c.EndTime.Year()}
	e := s.earnings[k]
	e.TeacherID, e.Month, e.Year = k.teacher, k.month, k.year
	e.TotalEarnings += c.Earning
	e.TotalClasses++
	e.UpdatedAt = time.Now()
	s.earnings[k] = e
	s.Writes++
	return nil
}

func (s *Store) ListSessions(_ context.Context, f db.SessionFilter) ([]models.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ClassSession{}
	for _, cs := range s.sessions {
		if f.StudentID != 0 && cs.StudentID != f.StudentID {
			continue
		}
		if f.TeacherID != 0 && cs.TeacherID != f.TeacherID {
			continue
		}
		if !f.From.IsZero() && cs.StartTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && cs.StartTime.After(f.To) {
			continue
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (s *Store) DueForReminder(_ context.Context, now time.Time, within time.Duration, batch int) ([]models.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ClassSession{}
	for _, cs := range s.sessions {
		if cs.Status != models.SessionScheduled || cs.ReminderSent {
			continue
		}
		if cs.StartTime.After(now) && !cs.StartTime.After(now.Add(within)) {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if len(out) > batch {
		out = out[:batch]
	}
	return out, nil
}

func (s *Store) MarkReminded(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if cs, ok := s.sessions[id]; ok {
			cs.ReminderSent = true
			s.sessions[id] = cs
		}
	}
	if len(ids) > 0 {
		s.Writes++
	}
	return nil
}

// --- earnings ---

func (s *Store) GetEarnings(_ context.Context, teacherID int64, month, year int) (*models.TeacherEarnings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.earnings[earningsKey{teacherID, month, year}]
	if !ok {
		return nil, fmt.Errorf("earnings: %w", apperr.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) ListEarnings(_ context.Context, teacherID int64) ([]models.TeacherEarnings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.TeacherEarnings{}
	for k, e := range s.earnings {
		if k.teacher == teacherID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out, nil
}
