// Aryad is a voice-first chat assistant daemon. It identifies the spoken
// language of an utterance, transcribes it, answers through an LLM in chat or
// interpreter mode and voices the reply.
//
// Usage:
//
//	aryad serve --config /path/to/aryad.yaml
//	aryad detect clip.wav
//	aryad train --out models english=data/en french=data/fr
//	aryad chat
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
