package cli

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"custody/internal/types"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/rest/httpc"
)

var walletInitCmd = &cobra.Command{
	Use:   "wallet-init",
	Short: "Ask a running server to provision deposit addresses for a user",
	RunE:  runWalletInit,
}

func init() {
	rootCmd.AddCommand(walletInitCmd)

	walletInitCmd.Flags().String("api-url", "http://localhost:8888", "API server URL")
	walletInitCmd.Flags().String("user", "", "user id")
	_ = walletInitCmd.MarkFlagRequired("user")
}

func runWalletInit(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api-url")
	user, _ := cmd.Flags().GetString("user")

	url := strings.TrimRight(apiURL, "/") + "/api/wallet_init"
	fmt.Printf("正向 %s 发送请求...\n", url)

	resp, err := httpc.Do(cmd.Context(), http.MethodPost, url, &types.WalletInitReq{UserId: user})
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	fmt.Println("\n--- 响应结果 ---")
	fmt.Printf("HTTP 状态码: %d\n", resp.StatusCode)
	fmt.Printf("响应体: %s\n", string(body))
	return nil
}
