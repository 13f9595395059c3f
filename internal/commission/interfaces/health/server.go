// Package health 通过 grpc.health.v1 对外报告服务状态，依赖检查失败时切换为 NOT_SERVING
package health

import (
	"context"
	"net"
	"time"

	"github.com/wyfcoding/commissionhub/pkg/logger"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const checkTimeout = 3 * time.Second

// Checker 检查数据库、缓存等依赖
type Checker func(ctx context.Context) error

type Server struct {
	grpc    *grpc.Server
	health  *grpchealth.Server
	service string
	check   Checker
}

func NewServer(service string, maxStreams int, check Checker) *Server {
	var opts []grpc.ServerOption
	if maxStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(maxStreams)))
	}
	s := &Server{
		grpc:    grpc.NewServer(opts...),
		health:  grpchealth.NewServer(),
		service: service,
		check:   check,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	// 首次检查通过前不接流量
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Refresh 执行一次依赖检查并更新状态
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.check(ctx); err != nil {
		logger.Warn(ctx, "dependency check failed", "service", s.service, "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.setStatus(status)
	return status
}

// Watch 按 interval 周期检查，ctx 结束时返回
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop 先切换为 NOT_SERVING 让负载均衡摘除，再等待存量请求结束
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
