package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/Spok95/learning-platform/internal/models"
)

// Fixture is a teacher and a student linked to each other, with the student on an
// ACTIVE subscription to a package.
type Fixture struct {
	Teacher      models.User
	Student      models.User
	Package      models.Package
	Subscription models.Subscription
}

// SeedPair builds a Fixture. allowance nil leaves classes_per_month unset.
func (s *Store) SeedPair(allowance *int, start time.Time, end *time.Time) Fixture {
	ctx := context.Background()
	n := s.nextID
	teacher := models.User{Email: fmt.Sprintf("teacher%d@example.com", n), FullName: "Teacher", Role: models.Teacher}
	student := models.User{Email: fmt.Sprintf("student%d@example.com", n), FullName: "Student", Role: models.Student}
	_ = s.CreateUser(ctx, &teacher)
	_ = s.CreateUser(ctx, &student)
	_ = s.AssignStudent(ctx, teacher.ID, student.ID)

	pkg := models.Package{
		Title:                "Standard",
		PriceCents:           4900,
		Currency:             "usd",
		BillingFrequency:     models.Monthly,
		ClassDurationMinutes: 30,
		ClassesPerMonth:      allowance,
	}
	_ = s.CreatePackage(ctx, &pkg)

	sub := models.Subscription{
		UserID:    student.ID,
		PackageID: pkg.ID,
		Status:    models.SubscriptionActive,
		StartDate: start,
		EndDate:   end,
		AutoRenew: true,
	}
	s.PutSubscription(&sub)

	s.mu.Lock()
	s.Writes = 0
	s.mu.Unlock()
	return Fixture{Teacher: teacher, Student: student, Package: pkg, Subscription: sub}
}

func IntPtr(v int) *int { return &v }

func TimePtr(t time.Time) *time.Time { return &t }

// PutUser overwrites a stored user, for seeding. It does not count as a write.
func (s *Store) PutUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
}

// PutPackage overwrites a stored package, for seeding. It does not count as a write.
func (s *Store) PutPackage(p *models.Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[p.ID] = *p
}
