package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/impromptu-ai/circuitflow"
)

var executeCmd = &cobra.Command{
	Use:   "execute <artifact-file>",
	Short: "Send a finished design artifact to the execution endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		client := circuitflow.NewClient(cfg.ServerURL)
		if err := client.ExecuteArtifact(ctx, string(data)); err != nil {
			return err
		}
		fmt.Println("Artifact accepted.")
		return nil
	},
}
