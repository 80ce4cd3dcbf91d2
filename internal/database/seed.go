package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gorm.io/gorm"

	"github.com/hackcrew/hackathon-platform/internal/models"
	"github.com/hackcrew/hackathon-platform/internal/repository"
)

const demoHackathonName = "HackCrew Demo Jam"

// SeedAdmin makes sure the configured admin account exists.
func SeedAdmin(ctx context.Context, store *repository.Store, email string) (*models.User, error) {
	var admin models.User
	err := store.DB().WithContext(ctx).Where("email = ?", email).First(&admin).Error
	if err == nil {
		return &admin, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	admin = models.User{
		Email:     email,
		FirstName: "Admin",
		LastName:  "User",
		Role:      models.RoleAdmin,
	}
	if err := store.CreateUser(ctx, &admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	slog.Info("admin_seeded", "email", email)
	return &admin, nil
}

// SeedDemo creates a hackathon whose registration closes shortly after
// startup, with enough participants for the scheduler to form teams.
func SeedDemo(ctx context.Context, store *repository.Store, now time.Time) error {
	var count int64
	if err := store.DB().WithContext(ctx).Model(&models.Hackathon{}).Where("name = ?", demoHackathonName).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil // Already seeded
	}

	deadline := now.UTC().Truncate(time.Second).Add(2 * time.Minute)
	h := &models.Hackathon{
		Name:                   demoHackathonName,
		Description:            "A short hackathon for trying out the lifecycle.",
		Status:                 models.StatusRegistrationOpen,
		IsActive:               true,
		RegistrationDeadline:   deadline,
		StartDate:              deadline.Add(time.Hour),
		EndDate:                deadline.Add(25 * time.Hour),
		WinnerAnnouncementDate: deadline.Add(26 * time.Hour),
		ProblemStatements: []string{
			"Cut food waste in school canteens",
			"Make public transit delays visible",
			"Help small clinics share appointment slots",
		},
		MaxTeamSize:               3,
		MinParticipantsToFormTeam: 4,
	}
	if err := store.CreateHackathon(ctx, h); err != nil {
		return fmt.Errorf("create demo hackathon: %w", err)
	}

	faker := gofakeit.New(uint64(now.Unix()))
	for i := 0; i < 8; i++ {
		u := &models.User{
			Email:     fmt.Sprintf("demo.%d.%s@hackcrew.dev", i+1, faker.Username()),
			FirstName: faker.FirstName(),
			LastName:  faker.LastName(),
			Role:      models.RoleParticipant,
		}
		if err := store.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("create demo participant: %w", err)
		}
		if err := store.AddParticipant(ctx, h.ID, u.ID, now); err != nil {
			return fmt.Errorf("register demo participant: %w", err)
		}
	}

	slog.Info("demo_seeded", "hackathon_id", h.ID, "registration_deadline", deadline)
	return nil
}
