// Command lexkv inspects and modifies lexkv databases from the shell.
//
//	lexkv --db app.db --schema schema.yaml add posts '{"title":"Hello"}'
//	lexkv --db app.db --schema schema.yaml search posts hello
//	lexkv --db app.db --schema schema.yaml backup s3://bucket/backups nightly.lxb
//
// Output is one JSON document per line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rc := Run(ctx, os.Args[1:], NewConfig())
	stop()
	os.Exit(rc)
}
