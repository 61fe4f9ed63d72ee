// Command hypersparse manages a hypersparse graph from the shell.
//
//	hypersparse --dir ./data relation add friend
//	hypersparse --dir ./data relation add distance --weight-type int64 --incidence
//	hypersparse --dir ./data insert '["friend","bob","alice"]' '["distance","chicago","seattle",422]'
//	hypersparse --dir ./data query --source bob
//	hypersparse --dir ./data project distance --combine min_plus
//	hypersparse --dir ./data serve --addr :7474 --grpc-addr :7475
//	hypersparse --remote localhost:7475 query --relation friend
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc/status"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", cliError(err))
		os.Exit(1)
	}
}

// cliError strips the gRPC envelope so local and remote runs print the
// same message.
func cliError(err error) error {
	if s, ok := status.FromError(err); ok {
		return errors.New(s.Message())
	}
	return err
}
