package main

import (
	"context"
	"fmt"
	"os"

	"webmail/backend/internal/auth"
	"webmail/backend/internal/config"
	"webmail/backend/internal/service"
	"webmail/backend/internal/storage/memory"
	"webmail/backend/internal/storage/postgres"
)

// main 直接在数据库中创建用户及其默认标签，用于预置收件人。
func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: create-user <email> <username> <password>")
		os.Exit(1)
	}
	email, username, password := os.Args[1], os.Args[2], os.Args[3]

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		fmt.Println("WEBMAIL_DATABASE_TYPE and WEBMAIL_DATABASE_DSN are required")
		os.Exit(1)
	}

	store, err := postgres.Open(cfg.Database)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// 注册不需要吊销表，使用内存实现即可
	authService := auth.NewService(store, memory.NewStore(), auth.NewJWTManager(&cfg.JWT), nil)
	authService.SetLabelInitializer(service.NewLabelService(store, store, nil))

	resp, err := authService.Register(context.Background(), auth.RegisterInput{
		Email:    email,
		Username: username,
		Password: password,
	})
	if err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ User created successfully!\n")
	fmt.Printf("  ID:       %s\n", resp.User.ID)
	fmt.Printf("  Email:    %s\n", resp.User.Email)
	fmt.Printf("  Username: %s\n", resp.User.Username)
}
