package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gorm.io/gorm"

	"github.com/hackcrew/hackathon-platform/internal/models"
	"github.com/hackcrew/hackathon-platform/internal/repository"
)

// Fixtures builds persisted users and hackathons with faker-generated data.
type Fixtures struct {
	t     testing.TB
	store *repository.Store
	faker *gofakeit.Faker
	n     int
}

func NewFixtures(t testing.TB, store *repository.Store, seed uint64) *Fixtures {
	return &Fixtures{t: t, store: store, faker: gofakeit.New(seed)}
}

// Users creates count participants with unique emails.
func (f *Fixtures) Users(count int) []models.User {
	f.t.Helper()
	users := make([]models.User, count)
	for i := range users {
		f.n++
		users[i] = models.User{
			Email:     fmt.Sprintf("%s.%d@example.test", f.faker.Username(), f.n),
			Role:      models.RoleParticipant,
			FirstName: f.faker.FirstName(),
			LastName:  f.faker.LastName(),
		}
		if err := f.store.CreateUser(context.Background(), &users[i]); err != nil {
			f.t.Fatalf("create user: %v", err)
		}
	}
	return users
}

// HackathonAt creates an open hackathon whose schedule is laid out relative
// to deadline: start a day later, end two days later, winners a day after.
// Options run before the insert.
func (f *Fixtures) HackathonAt(deadline time.Time, opts ...func(*models.Hackathon)) *models.Hackathon {
	f.t.Helper()
	deadline = deadline.UTC().Truncate(time.Second)
	h := &models.Hackathon{
		Name:                   f.faker.AppName(),
		Description:            f.faker.HackerPhrase(),
		Status:                 models.StatusRegistrationOpen,
		IsActive:               true,
		RegistrationDeadline:   deadline,
		StartDate:              deadline.Add(24 * time.Hour),
		EndDate:                deadline.Add(72 * time.Hour),
		WinnerAnnouncementDate: deadline.Add(96 * time.Hour),
		ProblemStatements:      []string{f.faker.HackerPhrase(), f.faker.HackerPhrase()},
		MaxTeamSize:            3,
	}
	for _, opt := range opts {
		opt(h)
	}
	active := h.IsActive
	if err := f.store.CreateHackathon(context.Background(), h); err != nil {
		f.t.Fatalf("create hackathon: %v", err)
	}
	// gorm substitutes the column default for a false bool on insert.
	if !active {
		if err := f.store.DB().Model(h).Update("is_active", false).Error; err != nil {
			f.t.Fatalf("deactivate hackathon: %v", err)
		}
	}
	return h
}

// Register adds every user as a participant of h and refreshes h. It writes
// the rows directly so tests can populate hackathons whose registration has
// already closed.
func (f *Fixtures) Register(h *models.Hackathon, users []models.User) {
	f.t.Helper()
	ctx := context.Background()
	db := f.store.DB().WithContext(ctx)
	for i, u := range users {
		p := models.HackathonParticipant{HackathonID: h.ID, UserID: u.ID}
		if err := db.Create(&p).Error; err != nil {
			f.t.Fatalf("register participant %d: %v", i, err)
		}
	}
	err := db.Model(&models.Hackathon{}).Where("id = ?", h.ID).
		UpdateColumn("total_members_joined", gorm.Expr("total_members_joined + ?", len(users))).Error
	if err != nil {
		f.t.Fatalf("bump participant counter: %v", err)
	}
	fresh, err := f.store.GetHackathon(ctx, h.ID)
	if err != nil {
		f.t.Fatalf("reload hackathon: %v", err)
	}
	*h = *fresh
}
