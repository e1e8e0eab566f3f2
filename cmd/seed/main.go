package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	"github.com/noah-isme/ops-tracker-api/internal/repository"
	"github.com/noah-isme/ops-tracker-api/internal/service"
	"github.com/noah-isme/ops-tracker-api/pkg/config"
	"github.com/noah-isme/ops-tracker-api/pkg/database"
	"github.com/noah-isme/ops-tracker-api/pkg/logger"
)

type seedUser struct {
	Name     string
	Email    string
	Password string
	Role     models.UserRole
}

var demoUsers = []seedUser{
	{Name: "Admin User", Email: "admin@example.com", Password: "admin123", Role: models.RoleAdmin},
	{Name: "Manager User", Email: "manager@example.com", Password: "manager123", Role: models.RoleManager},
	{Name: "Jane Smith", Email: "jane@example.com", Password: "jane123", Role: models.RoleUser},
	{Name: "Bob Johnson", Email: "bob@example.com", Password: "bob123", Role: models.RoleUser},
}

var demoIssues = []models.CreateIssueRequest{
	{Title: "Login page not responding", Description: "Users report the login form hangs after submit on mobile browsers.", Priority: models.IssuePriorityHigh, AssignedTo: "Jane Smith", Tags: []string{"bug", "auth"}},
	{Title: "Add dark mode", Description: "Provide a dark theme toggle in user settings.", Priority: models.IssuePriorityLow, Tags: []string{"feature", "ui"}},
	{Title: "Slow issue search", Description: "Searching by keyword takes several seconds on large datasets.", Priority: models.IssuePriorityMedium, Status: models.IssueStatusInProgress, AssignedTo: "Bob Johnson", Tags: []string{"performance"}},
	{Title: "Broken export link", Description: "The CSV export button returns a 404 for managers.", Priority: models.IssuePriorityHigh, Status: models.IssueStatusClosed, AssignedTo: "Jane Smith", Tags: []string{"bug"}},
	{Title: "Update onboarding docs", Description: "Document the new deployment steps for staging.", Priority: models.IssuePriorityLow, Tags: []string{"docs"}},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	users := repository.NewUserRepository(db)
	adminID, err := seedUsers(ctx, users, logr)
	if err != nil {
		logr.Fatal("seeding users failed", zap.Error(err))
	}

	issueRepo := repository.NewIssueRepository(db)
	if _, total, err := issueRepo.List(ctx, models.IssueQuery{PageSize: 1}); err != nil {
		logr.Fatal("counting issues failed", zap.Error(err))
	} else if total > 0 {
		logr.Info("issues already seeded", zap.Int("count", total))
		return
	}

	issues := service.NewIssueService(issueRepo, users, nil, validator.New(), logr)
	for _, req := range demoIssues {
		issue, err := issues.Create(ctx, adminID, req)
		if err != nil {
			logr.Fatal("seeding issue failed", zap.String("title", req.Title), zap.Error(err))
		}
		logr.Info("issue seeded", zap.String("code", issue.Code))
	}
}

// seedUsers creates missing demo accounts and returns the admin's id.
func seedUsers(ctx context.Context, users *repository.UserRepository, logr *zap.Logger) (string, error) {
	var adminID string
	for _, u := range demoUsers {
		existing, err := users.FindByEmail(ctx, u.Email)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		if err == nil {
			logr.Info("user exists", zap.String("email", u.Email))
			if u.Role == models.RoleAdmin {
				adminID = existing.ID
			}
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return "", err
		}
		user := &models.User{Name: u.Name, Email: u.Email, PasswordHash: string(hash), Role: u.Role, Active: true}
		if err := users.Create(ctx, user); err != nil {
			return "", err
		}
		logr.Info("user seeded", zap.String("email", u.Email), zap.String("role", string(u.Role)))
		if u.Role == models.RoleAdmin {
			adminID = user.ID
		}
	}
	return adminID, nil
}
