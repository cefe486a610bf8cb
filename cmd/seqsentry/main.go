// seqsentry - anomalous command-sequence detection
//
// seqsentry trains a Markov model on a corpus of command sessions and
// reports the sessions whose rarest sliding window is least likely:
//
//	seqsentry score <file>       Train on a session file and print its rarest sessions
//	seqsentry watch <file>       Rescore whenever the file settles after a change
//	seqsentry validate <file>    Check a session file against the input schema
//	seqsentry history [run-id]   List recorded runs or show one of them
//	seqsentry config init        Write a default configuration file
//	seqsentry db status          Show the result store schema version
//	seqsentry version            Print the version
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
