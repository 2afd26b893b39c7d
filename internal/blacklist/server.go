package blacklist

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ServerConfig 参考服务端配置
type ServerConfig struct {
	BloomSize   int           // 布隆过滤器位数
	BloomHashes int           // 哈希函数个数
	ReadTimeout time.Duration // 读取请求行的时限
	Seeds       []string      // 启动时预置的黑名单 URL
}

// Server 黑名单服务的参考实现，用于本地开发与测试。
//
// GET 的响应为 "200 Ok\n\n<bloom> <exact>"：第一个值是布隆过滤器的结果，
// 第二个值是精确集合的确认结果。每个连接只处理一条请求，写完响应后关闭。
type Server struct {
	cfg ServerConfig
	log *zap.Logger

	mu    sync.RWMutex
	bloom *bloomFilter
	urls  map[string]struct{}

	wg sync.WaitGroup
}

// NewServer 创建参考服务端
func NewServer(cfg ServerConfig, log *zap.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:   cfg,
		log:   log.Named("oracle"),
		bloom: newBloomFilter(cfg.BloomSize, cfg.BloomHashes),
		urls:  make(map[string]struct{}),
	}
	for _, u := range cfg.Seeds {
		s.add(u)
	}
	return s
}

// ListenAndServe 监听地址并处理连接，直到 ctx 结束
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定的监听器上处理连接，ctx 结束时关闭监听器并等待进行中的连接
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("oracle listening", zap.String("address", ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		s.log.Debug("failed to read request", zap.Error(err))
		return
	}

	resp := s.Execute(line)
	if _, err := io.WriteString(conn, resp); err != nil {
		s.log.Debug("failed to write response", zap.Error(err))
	}
}

// Execute 执行一条请求行并返回完整响应
func (s *Server) Execute(line string) string {
	line = strings.TrimRight(line, "\r\n")
	verb, payload, ok := strings.Cut(line, " ")
	if !ok || payload == "" {
		return StatusBadRequest + "\n"
	}

	switch verb {
	case VerbGet:
		s.mu.RLock()
		maybe := s.bloom.mayContain(payload)
		_, exact := s.urls[payload]
		s.mu.RUnlock()
		return StatusOK + "\n\n" + strconv.FormatBool(maybe) + " " + strconv.FormatBool(maybe && exact)

	case VerbPost:
		s.add(payload)
		s.log.Info("url blacklisted", zap.String("url", payload))
		return StatusCreated + "\n"

	case VerbDelete:
		s.mu.Lock()
		_, exists := s.urls[payload]
		delete(s.urls, payload)
		s.mu.Unlock()
		if !exists {
			return StatusNotFound + "\n"
		}
		s.log.Info("url removed from blacklist", zap.String("url", payload))
		return StatusNoContent + "\n"

	default:
		return StatusBadRequest + "\n"
	}
}

func (s *Server) add(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bloom.add(url)
	s.urls[url] = struct{}{}
}
