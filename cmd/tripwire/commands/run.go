package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run detection once",
	Long: `Run detection once over the configured metrics. When anomalies are found an
incident is opened, persisted, and its evidence bundle written and uploaded.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(closeCtx)
	}()

	outcome, err := a.pipeline.RunOnce(ctx)
	if err != nil {
		return err
	}

	p := newPrinter()
	p.anomalies(outcome.Result.Anomalies)
	if outcome.Healthy() {
		return nil
	}

	p.println("")
	p.println(fmt.Sprintf("Incident %s opened (window %s - %s)",
		outcome.Incident.ID,
		outcome.Incident.Window.Start.UTC().Format(time.RFC3339),
		outcome.Incident.Window.End.UTC().Format(time.RFC3339)))
	p.println("Evidence written to " + outcome.ArtifactPath)
	switch {
	case outcome.UploadErr != nil:
		p.println(p.render(metricStyle, "Upload failed: "+outcome.UploadErr.Error()))
	case outcome.UploadedTo != "":
		p.println("Uploaded to " + outcome.UploadedTo)
	}
	return nil
}
