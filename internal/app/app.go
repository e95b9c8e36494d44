package app

import (
	"context"
	"fmt"

	"banyan/internal/config"
	"banyan/internal/logger"
	apihttp "banyan/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→构建依赖→启动实时引擎与 HTTP 服务。
type App struct {
	cfg     *config.Config
	live    *LiveService
	api     *apihttp.Server
	sweeps  *sweepStack
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动实时引擎与 HTTP 服务，任一退出即整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	if a.Summary != nil {
		a.Summary.Print()
	}

	if a.live == nil {
		return fmt.Errorf("live service not initialized")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	if a.api != nil {
		group.Go(func() error {
			if err := a.api.Start(ctx); err != nil {
				return fmt.Errorf("api server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		defer a.live.Close()
		// 行情耗尽属于正常结束,也要放 HTTP 服务退出
		defer cancel()
		return a.live.Run(ctx)
	})

	err := group.Wait()
	// 扫描结果库可能被 API 触发的后台扫描持有,等两个服务都停了再关
	if a.sweeps != nil {
		a.sweeps.Close()
	}
	return err
}

// LiveService 暴露底层实时服务实例（供测试与回放挂载）。
func (a *App) LiveService() *LiveService {
	if a == nil {
		return nil
	}
	return a.live
}
