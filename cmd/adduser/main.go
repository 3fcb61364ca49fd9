// 创建本地账户的工具（数据库凭据源使用）
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pu-ac-cn/sso-core/internal/config"
	"github.com/pu-ac-cn/sso-core/internal/database"
	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/pu-ac-cn/sso-core/internal/repository"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("用法: adduser <用户名> <密码> [邮箱]")
		fmt.Println("示例: adduser alice secret alice@example.org")
		os.Exit(1)
	}

	username := os.Args[1]
	password := os.Args[2]
	email := ""
	if len(os.Args) > 3 {
		email = os.Args[3]
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	userRepo := repository.NewUserRepository(database.GetDB())

	user := &model.User{
		Username: username,
		Email:    email,
		Status:   model.StatusActive,
	}
	if err := user.SetPassword(password); err != nil {
		log.Fatalf("设置密码失败: %v", err)
	}

	if err := userRepo.Create(ctx, user); err != nil {
		log.Fatalf("创建用户失败: %v", err)
	}

	fmt.Printf("成功创建用户 %s (%s)\n", user.Username, user.ID)
}
