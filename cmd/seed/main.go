package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"hrms/internal/apperror"
	"hrms/internal/authz"
	"hrms/internal/config"
	"hrms/internal/database"
	"hrms/internal/logger"
	"hrms/internal/model"
	"hrms/internal/permcache"
	"hrms/internal/repository"
	"hrms/internal/service"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

func main() {
	file := pflag.StringP("file", "f", "configs/rbac.yaml", "RBAC catalogue to seed")
	adminEmail := pflag.String("super-admin-email", "", "create a super-admin with this email if it does not exist")
	adminPassword := pflag.String("super-admin-password", "", "password for the super-admin")
	pflag.Parse()

	log := logger.Get()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	seed, err := loadSeed(*file)
	if err != nil {
		log.WithError(err).Fatal("failed to read seed file")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}

	roleRepo := repository.NewRoleRepository(db)
	txManager := repository.NewTransactionManager(db)
	engine := authz.NewEngine(permcache.NewMemoryCache(), roleRepo, cfg.PermissionCacheTTL)
	roles := service.NewRoleService(roleRepo, txManager, service.NewAuditService(repository.NewAuditRepository(db), engine), engine)

	ctx := context.Background()
	if err := roles.Seed(ctx, seed); err != nil {
		log.WithError(err).Fatal("seeding failed")
	}
	log.WithFields(map[string]any{
		"permissions": len(seed.Permissions),
		"roles":       len(seed.Roles),
	}).Info("RBAC catalogue seeded")

	if *adminEmail != "" {
		created, err := ensureSuperAdmin(ctx, repository.NewUserRepository(db), *adminEmail, *adminPassword)
		if err != nil {
			log.WithError(err).Fatal("failed to create super-admin")
		}
		if created {
			log.WithField("email", *adminEmail).Info("super-admin created")
		}
	}
}

func loadSeed(path string) (service.RBACSeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return service.RBACSeed{}, err
	}
	defer f.Close()
	return parseSeed(f)
}

func parseSeed(r io.Reader) (service.RBACSeed, error) {
	var seed service.RBACSeed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return seed, fmt.Errorf("failed to decode seed: %w", err)
	}
	return seed, nil
}

func ensureSuperAdmin(ctx context.Context, users repository.UserRepository, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(password) < 8 {
		return false, errors.New("super-admin password must be at least 8 characters")
	}
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return false, nil
	} else if apperror.KindOf(apperror.FromStore(err)) != apperror.KindNotFound {
		return false, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}
	return true, users.Create(ctx, &model.User{
		Name:         "Super Admin",
		Email:        email,
		Password:     string(hashed),
		IsSuperAdmin: true,
		IsActive:     true,
	})
}
