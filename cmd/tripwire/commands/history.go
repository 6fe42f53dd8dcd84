package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
	"github.com/moolen/tripwire/internal/store"
	"github.com/spf13/cobra"
)

var (
	historySince string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded incidents",
	Long: `List recorded incidents, newest first.

--since accepts Unix seconds or human-readable dates such as "2 hours ago",
"yesterday" or "2024-05-01".`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only list incidents triggered at or after this time")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of incidents (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	since, err := parseSince(historySince, time.Now())
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

	incidents, err := s.ListIncidents(context.Background(), store.ListOptions{Since: since, Limit: historyLimit})
	if err != nil {
		return err
	}

	p := newPrinter()
	if len(incidents) == 0 {
		p.println("No incidents recorded.")
		return nil
	}
	for _, inc := range incidents {
		p.incidentLine(inc)
	}
	return nil
}

// parseSince parses Unix seconds or a human-readable date relative to now.
// An empty string returns the zero time.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		if unix < 0 {
			return time.Time{}, fmt.Errorf("--since must be non-negative")
		}
		return time.Unix(unix, 0).UTC(), nil
	}

	parser := dps.Parser{}
	parsed, err := parser.Parse(&dps.Configuration{
		CurrentTime:         now,
		PreferredDateSource: dps.Past,
	}, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since must be a Unix timestamp or human-readable date: %w", err)
	}
	if parsed.IsZero() {
		return time.Time{}, fmt.Errorf("--since could not be parsed as a date: %s", s)
	}
	return parsed.Time, nil
}
