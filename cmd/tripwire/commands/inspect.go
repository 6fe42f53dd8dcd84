package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/moolen/tripwire/internal/artifact"
	"github.com/moolen/tripwire/internal/store"
	"github.com/spf13/cobra"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect <incident-id>",
	Short: "Print the evidence bundle of an incident",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "o", "json", "Output format (json or yaml)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	format, err := artifact.ParseFormat(inspectFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	inc, err := s.GetIncident(ctx, args[0])
	if err != nil {
		return err
	}

	collector, err := newCollector(cfg)
	if err != nil {
		return err
	}
	bundle, err := collector.Collect(ctx, inc)
	if err != nil {
		return err
	}

	data, err := format.Encode(bundle)
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	_, err = os.Stdout.Write(data)
	return err
}
