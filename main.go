package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"easy_apply_go/worker"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "easy_apply",
	Short:        "Xing / StepStone / LinkedIn 一键投递",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动本地控制页",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *Application) error {
			return app.Serve(ctx)
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <platform>",
	Short: "打开浏览器登录并保存 Cookie",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *Application) error {
			return app.jobService.Login(ctx, args[0], printProgress)
		})
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <platform>",
	Short: "执行一次投递",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *Application) error {
			res, err := app.jobService.Apply(ctx, args[0], printProgress)
			if err != nil {
				return err
			}
			fmt.Printf("投递完成: %d 个职位，成功 %d 个\n", len(res.Listings), len(res.Records))
			return nil
		})
	},
}

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "列出支持的平台及登录状态",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(_ context.Context, app *Application) error {
			for _, st := range app.jobService.Status() {
				fmt.Printf("%-10s logged_in=%t\n", st.Platform, st.LoggedIn)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "user_data/config.yaml", "配置文件路径")
	rootCmd.AddCommand(serveCmd, loginCmd, applyCmd, platformsCmd)
}

func printProgress(m worker.JobProgressMessage) {
	log.WithField("platform", m.Platform).Infof("[%s] %s", m.Type, m.Message)
}

// withApp 初始化应用，执行 fn，收到 SIGINT/SIGTERM 时取消 ctx 并安全退出
func withApp(parent context.Context, fn func(ctx context.Context, app *Application) error) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app, err := NewApplication(configPath)
	if err != nil {
		return err
	}
	defer app.Stop()
	if err := app.InitServices(ctx); err != nil {
		return fmt.Errorf("服务初始化失败: %w", err)
	}
	return fn(ctx, app)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
