package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func (r *root) watchCommand() *cobra.Command {
	var (
		dir      string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process new .txt/.md files from an inbox directory",
		Long: `Scans the inbox every interval and runs the pipeline over files that
are new or changed since the last successful scan. Stops on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := r.application(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Watch(cmd.Context(), dir, interval)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "inbox directory (default watch.dir)")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "scan interval (default watch.interval)")
	return cmd
}
