package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"publier/backend/internal/auth"
	"publier/backend/internal/config"
	"publier/backend/internal/domain"
	"publier/backend/internal/service"
	"publier/backend/internal/storage/postgres"
)

func main() {
	email := flag.String("email", "", "开发者邮箱")
	password := flag.String("password", "", "登录密码（至少 8 位）")
	name := flag.String("name", "Developer", "开发者名称")
	appName := flag.String("app", "Default App", "应用名称")
	env := flag.String("env", string(domain.EnvironmentDevelopment), "应用环境: development 或 production")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Println("Usage: create-developer -email=<email> -password=<password> [-name=<name>] [-app=<app>] [-env=development|production]")
		os.Exit(1)
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type == config.DatabaseMemory {
		fmt.Println("database.type is not set: a memory store would discard the developer on exit")
		os.Exit(1)
	}

	log := zap.NewNop()
	store, err := postgres.Open(&cfg.Database, log)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 已存在的账户直接复用
	authService := auth.NewService(store, nil, auth.Options{
		SessionTTL:      cfg.Auth.SessionTTL,
		VerificationTTL: cfg.Auth.VerificationTTL,
		PublicURL:       cfg.Auth.PublicURL,
	}, log)
	user, err := authService.Register(ctx, auth.RegisterInput{Email: *email, Password: *password, Name: *name})
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Kind == domain.KindConflict {
		user, err = store.GetUserByEmail(ctx, domain.NormalizeEmail(*email))
	}
	if err != nil {
		fmt.Printf("Failed to create developer: %v\n", err)
		os.Exit(1)
	}

	app, err := service.NewAppService(store, log).Create(ctx, service.CreateAppInput{
		UserID:      user.ID,
		Name:        *appName,
		Environment: domain.Environment(*env),
	})
	if err != nil {
		fmt.Printf("Failed to create app: %v\n", err)
		os.Exit(1)
	}

	created, err := service.NewAPIKeyService(store, store, log).Create(ctx, service.CreateAPIKeyInput{
		UserID: user.ID,
		AppID:  app.ID,
		Name:   "bootstrap",
	})
	if err != nil {
		fmt.Printf("Failed to issue API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Developer ready!\n")
	fmt.Printf("  User:    %s (%s)\n", user.Email, user.ID)
	fmt.Printf("  App:     %s (%s, %s)\n", app.Name, app.ID, app.Environment)
	fmt.Printf("  API key: %s\n", created.RawKey)
	fmt.Println("\nStore this key securely. It will not be shown again.")
}
