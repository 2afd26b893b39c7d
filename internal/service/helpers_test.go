package service

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"webmail/backend/internal/blacklist"
)

// startOracle 在随机端口启动参考黑名单服务
func startOracle(t *testing.T, seeds ...string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	server := blacklist.NewServer(blacklist.ServerConfig{Seeds: seeds}, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}
