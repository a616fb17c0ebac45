// Command shardq builds logical criteria queries and replays them on every
// configured shard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruilorenzetti/hibernate-shards/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "shardq:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
