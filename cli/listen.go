package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"custody/internal/handler"
	"custody/internal/svc"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the watchers and the operator HTTP API",
	RunE:  runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	c := loadConfig()

	server := rest.MustNewServer(c.RestConf)
	defer server.Stop()

	svcCtx := svc.NewServiceContext(c)
	handler.RegisterHandlers(server, svcCtx)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCtx.Orchestrator.Start(ctx)
	go server.Start()
	fmt.Printf("Starting server at %s:%d...\n", c.Host, c.Port)
	logx.Infof("watching networks: %v", c.EnabledNetworks())

	<-ctx.Done()
	fmt.Println("\n🛑 收到退出信号，正在优雅关闭服务...")

	// 先停 watcher 并等待在途归集完成
	svcCtx.Close()
	fmt.Println("✅ 服务已安全退出")
	return nil
}
