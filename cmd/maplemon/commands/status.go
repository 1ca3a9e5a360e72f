package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Await-d/maple-blog-sub005/internal/api"
	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// StatusReport is what the status command prints.
type StatusReport struct {
	Status monitoring.Status       `json:"status" yaml:"status"`
	Alerts []monitoring.AlertRecord `json:"alerts" yaml:"alerts"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status and active alerts",
		Long:  `Query a running maplemon instance for scheduler counters, history size and active alerts.`,
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	cmd.Flags().String("api-url", "http://localhost:9400", "API server URL")
	cmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	cmd.Flags().Duration("timeout", 10*time.Second, "Request timeout")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api-url")
	format, _ := cmd.Flags().GetString("format")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	client := &http.Client{Timeout: timeout}
	base := strings.TrimRight(apiURL, "/")

	var report StatusReport
	if err := fetch(client, base+"/api/v1/status", &report.Status); err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}
	if err := fetch(client, base+"/api/v1/alerts", &report.Alerts); err != nil {
		return fmt.Errorf("failed to fetch alerts: %w", err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(report)
	case "table":
		displayTable(out, &report, time.Now())
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// fetch decodes the data field of an API envelope into dst.
func fetch(client *http.Client, url string, dst interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		api.Response
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("API returned status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, envelope.Error)
	}
	return json.Unmarshal(envelope.Data, dst)
}

func displayTable(w io.Writer, report *StatusReport, now time.Time) {
	s := report.Status

	fmt.Fprintf(w, "maplemon status - %s\n\n", now.Format("2006-01-02 15:04:05"))

	fmt.Fprintln(w, "Scheduler:")
	fmt.Fprintf(w, "  State            : %s\n", s.Scheduler.State)
	fmt.Fprintf(w, "  Interval         : %s\n", s.Scheduler.Interval)
	fmt.Fprintf(w, "  Ticks            : %s run, %s skipped, %s failed\n",
		humanize.Comma(int64(s.Scheduler.TicksRun)),
		humanize.Comma(int64(s.Scheduler.TicksSkipped)),
		humanize.Comma(int64(s.Scheduler.TickErrors)),
	)
	if !s.Scheduler.LastTickAt.IsZero() {
		fmt.Fprintf(w, "  Last tick        : %s (took %s)\n",
			humanize.RelTime(s.Scheduler.LastTickAt, now, "ago", "from now"),
			s.Scheduler.LastTickDuration.Round(time.Millisecond),
		)
	}
	fmt.Fprintf(w, "  Started          : %s\n", humanize.RelTime(s.StartedAt, now, "ago", "from now"))

	fmt.Fprintln(w, "\nHistory:")
	fmt.Fprintf(w, "  Snapshots        : %s (%s evicted)\n", humanize.Comma(int64(s.Snapshots)), humanize.Comma(int64(s.Evicted)))
	fmt.Fprintf(w, "  Retention        : %s\n", s.Retention)
	fmt.Fprintf(w, "  Collectors       : %s\n", strings.Join(s.Collectors, ", "))
	fmt.Fprintf(w, "  Rules            : %d\n", s.Rules)

	fmt.Fprintln(w, "\nAlerts:")
	fmt.Fprintf(w, "  Raised/resolved  : %s / %s\n", humanize.Comma(int64(s.AlertsRaised)), humanize.Comma(int64(s.AlertsResolved)))
	if len(report.Alerts) == 0 {
		fmt.Fprintln(w, "  No active alerts")
		return
	}
	for _, a := range report.Alerts {
		ack := ""
		if a.Acknowledged {
			ack = " (ack)"
		}
		value := humanize.FormatFloat("#,###.##", a.MetricValue)
		if a.MissingData {
			value = "missing"
		}
		fmt.Fprintf(w, "  - [%s] %s: %s %s %s, since %s%s\n",
			strings.ToUpper(a.Level.String()),
			a.RuleName,
			a.Metric,
			a.Operator,
			humanize.FormatFloat("#,###.##", a.Threshold),
			humanize.RelTime(a.TriggeredAt, now, "ago", "from now"),
			ack,
		)
		fmt.Fprintf(w, "      value=%s %s\n", value, a.Message)
	}
}
