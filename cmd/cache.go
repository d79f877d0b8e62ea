package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pizza-search/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache maintenance",
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drop every cached search result",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Redis.Enabled {
			return eris.New("cache is disabled in config")
		}

		c := cache.NewRedis(cmd.Context(), cache.RedisOptions{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			DefaultTTL: time.Duration(cfg.Search.CacheTTLSecs) * time.Second,
		}, cache.NewAvailability(false))
		defer c.Close()

		if !c.FlushAll(cmd.Context()) {
			return eris.New("cache flush failed")
		}
		zap.L().Info("cache flushed", zap.String("addr", cfg.Redis.Addr))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheFlushCmd)
	rootCmd.AddCommand(cacheCmd)
}
