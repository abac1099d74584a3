package main

import (
    "log"

    "github.com/spf13/cobra"

    spantreecli "github.com/amirimatin/go-spantree/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "spantreectl",
        Short:         "go-spantree server and management CLI",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    spantreecli.AddAll(root)
    return root
}
