// Command pagefilecli is a small sample program embedding the
// storage and bufferpool packages, in the spirit of the teacher's
// src/cmd/main.go. It takes no command-line flags (spec.md §6 keeps
// the core itself free of any CLI surface); instead it reads a YAML
// config naming the page file, pool capacity, and replacement
// strategy, following tuannm99-novasql's internal/config.go idiom.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gitlab.com/dbkernel/pagestore/src/bufferpool"
	"gitlab.com/dbkernel/pagestore/src/config"
	"gitlab.com/dbkernel/pagestore/src/storage"
)

func strategyFromName(name string) bufferpool.Strategy {
	switch strings.ToLower(name) {
	case "fifo":
		return bufferpool.FIFO
	case "lru-k", "lruk":
		return bufferpool.LRUK
	default:
		return bufferpool.LRU
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	mgr := storage.NewManager(afero.NewOsFs())
	if _, statErr := os.Stat(cfg.Storage.File); os.IsNotExist(statErr) {
		if err := mgr.CreatePageFile(cfg.Storage.File); err != nil {
			return fmt.Errorf("create page file: %w", err)
		}
	}

	pool, err := bufferpool.InitBufferPool(
		mgr,
		cfg.Storage.File,
		cfg.Pool.Capacity,
		strategyFromName(cfg.Pool.Strategy),
		nil,
		bufferpool.WithLogger(sugar),
	)
	if err != nil {
		return fmt.Errorf("init buffer pool: %w", err)
	}
	defer pool.ShutdownBufferPool()

	ph, err := pool.PinPage(0)
	if err != nil {
		return fmt.Errorf("pin page 0: %w", err)
	}
	defer pool.UnpinPage(ph)

	sugar.Infow("pinned page",
		"pageNum", ph.PageNum,
		"readIO", pool.GetNumReadIO(),
		"writeIO", pool.GetNumWriteIO(),
	)
	return nil
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: pagefilecli <config.yaml>")
		os.Exit(1)
	}
	if err := run(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
