// Command stageworker serves geometry tasks over stdin and stdout, one JSON
// message per line. It is spawned by worker.Exec.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/stage/worker"
	"github.com/gogpu/stage/worker/geometry"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("stageworker: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worker.Serve(ctx, os.Stdin, os.Stdout, geometry.Handler()); err != nil {
		log.Fatal(err)
	}
}
