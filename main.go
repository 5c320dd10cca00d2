package main

import (
	"bufio"
	"os"
	"os/signal"
	"syscall"

	"bpindex/cli"
	"bpindex/config"
	"bpindex/pkg/bptree"
	"bpindex/util/logger"
)

func main() {
	configs := config.New()

	tree, err := bptree.Open(configs.IndexConfig.Path, &bptree.Options{
		BlockSize: configs.IndexConfig.BlockSize,
		CacheSize: configs.IndexConfig.CacheSize,
	})
	if err != nil {
		logger.L.Fatalf("failed to open index: %v", err)
	}

	defer func() {
		if err := tree.Close(); err != nil {
			logger.L.Errorf("error on gracefully stopping: %v", err)
		}
	}()

	logger.L.Infof("opened %s", tree)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c := cli.New(bufio.NewScanner(os.Stdin), tree)
		c.Start()
	}()

	select {
	case <-done:
	case q := <-quit:
		logger.L.Infof("%s signal received, stopping gracefully...", q.String())
	}
}
