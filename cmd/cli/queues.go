package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/casperarmani/backendmultchat/internal/taskqueue"
)

// queuesCmd represents the queues command
var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "Show the depth of every task queue",
	Long: `List every priority/type queue and the number of tasks currently
waiting in each, ordered high priority first.`,
	Example: `  chat-backend queues`,
	Args:    cobra.NoArgs,
	RunE:    runQueues,
}

func init() {
	rootCmd.AddCommand(queuesCmd)
}

func runQueues(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	queue := taskqueue.New(rdb, logger)
	depths, err := queue.Depths(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue depths: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "QUEUE\tDEPTH")
	var total int64
	for _, key := range taskqueue.QueueKeys() {
		fmt.Fprintf(w, "%s\t%d\n", key, depths[key])
		total += depths[key]
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	return w.Flush()
}
