// Command mcp-stdio-demo runs the everything example server over stdin
// and stdout using mcp.LineTransport, a newline-delimited-JSON framing.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/haldor-dev/go-mcp"
	"github.com/haldor-dev/go-mcp/examples/everything"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "shutting down...")
		cancel()
	}()

	transport := mcp.NewLineTransport(os.Stdin, os.Stdout)
	session := everything.NewServer(transport)

	if err := session.Start(ctx); err != nil {
		log.Fatalf("mcp-stdio-demo: %v", err)
	}

	<-ctx.Done()
	if err := session.Close(); err != nil {
		log.Printf("mcp-stdio-demo: close: %v", err)
	}
}
