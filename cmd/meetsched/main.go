// Command meetsched runs the calendar availability engine: parse and
// validate iCalendar files, compute ranked meeting slots, or serve the HTTP
// API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"meetsched/internal/config"
	"meetsched/internal/ical"
	appLog "meetsched/internal/log"
	"meetsched/internal/model"
	"meetsched/internal/provider"
	"meetsched/internal/provider/google"
	"meetsched/internal/provider/icsfeed"
	"meetsched/internal/schedule"
	"meetsched/internal/session"
	"meetsched/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "meetsched",
		Short:         "Calendar availability and meeting scheduling engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				appLog.SetLevel(appLog.LevelDebug)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newParseCmd())
	root.AddCommand(newFetchCmd())
	root.AddCommand(newScheduleCmd())
	root.AddCommand(newServeCmd())
	return root
}

// newProviderRegistry registers the built-in remote sources, each paced at a
// provider-friendly request rate.
func newProviderRegistry(cacheDir string) *provider.Registry {
	reg := provider.NewRegistry()
	reg.Register(provider.RateLimited(google.New(), rate.Limit(5), 10))
	reg.Register(provider.RateLimited(icsfeed.New(cacheDir), rate.Limit(1), 3))
	return reg
}

func newFetchCmd() *cobra.Command {
	var (
		providerName string
		token        string
		label        string
		days         int
		cacheDir     string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a remote calendar and print the participant calendar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := newProviderRegistry(cacheDir)
			src, ok := reg.Get(providerName)
			if !ok {
				return fmt.Errorf("unknown provider %q (available: %s)",
					providerName, strings.Join(reg.Names(), ", "))
			}
			if token == "" {
				return fmt.Errorf("--token is required (OAuth token or feed URL)")
			}

			now := time.Now().UTC()
			window := model.SearchRange{Start: now, End: now.AddDate(0, 0, days)}

			events, err := src.Fetch(cmd.Context(), token, window)
			if err != nil {
				return err
			}

			if label == "" {
				label = providerName
			}
			cal := model.ParticipantCalendar{
				ParticipantID: label,
				Name:          label,
				Timezone:      "UTC",
				Source:        src.Name(),
				Events:        events,
			}
			return printJSON(cmd, cal)
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "ics-feed", "provider source (google, ics-feed)")
	cmd.Flags().StringVar(&token, "token", "", "OAuth access token, or the feed URL for ics-feed")
	cmd.Flags().StringVar(&label, "label", "", "participant label for the fetched calendar")
	cmd.Flags().IntVar(&days, "days", 30, "number of days of events to fetch")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "feed cache directory")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.ics>",
		Short: "Run the structural pre-check over an iCalendar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			defects := ical.Validate(string(data))
			if len(defects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return nil
			}
			for _, d := range defects {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return fmt.Errorf("%d defect(s) found", len(defects))
		},
	}
}

func newParseCmd() *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "parse <file.ics>",
		Short: "Parse an iCalendar file and print the participant calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cal, err := loadCalendar(args[0], label)
			if err != nil {
				return err
			}
			return printJSON(cmd, cal)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "participant label (defaults to the file name)")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	var (
		configPath string
		calendars  []string
		duration   int
		buffer     int
		from       string
		days       int
		rangeStart string
		rangeEnd   string
		weekends   bool
		excluded   []string
		preferred  []string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Compute ranked meeting slots for a set of calendar files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			if len(calendars) == 0 {
				return fmt.Errorf("at least one --calendar file is required")
			}
			participants := make([]model.ParticipantCalendar, 0, len(calendars))
			for _, arg := range calendars {
				path, label, _ := strings.Cut(arg, ",")
				cal, err := loadCalendar(path, label)
				if err != nil {
					return err
				}
				participants = append(participants, *cal)
			}

			start := time.Now().UTC()
			if from != "" {
				start, err = time.Parse("2006-01-02", from)
				if err != nil {
					return fmt.Errorf("bad --from date: %w", err)
				}
			}
			if days <= 0 {
				days = cfg.Scheduling.SearchDays
			}

			prefs := model.MeetingPreferences{
				Duration:           pick(duration, cfg.Scheduling.DurationMinutes),
				TimeRangeStart:     pickStr(rangeStart, cfg.Scheduling.BusinessHoursStart),
				TimeRangeEnd:       pickStr(rangeEnd, cfg.Scheduling.BusinessHoursEnd),
				ExcludeWeekends:    !weekends,
				BufferTime:         pick(buffer, cfg.Scheduling.BufferMinutes),
				PreferredTimezones: preferred,
			}
			for _, d := range excluded {
				t, err := time.Parse("2006-01-02", d)
				if err != nil {
					return fmt.Errorf("bad --exclude date %q: %w", d, err)
				}
				prefs.ExcludedDates = append(prefs.ExcludedDates, t)
			}

			proc := schedule.NewProcessor()
			proc.MaxOccurrences = cfg.Scheduling.MaxOccurrences
			sched := schedule.NewScheduler(proc)
			sched.TopN = cfg.Scheduling.TopRecommendations

			result, err := sched.ScheduleOptimalMeeting(participants, prefs, model.SearchRange{
				Start: start,
				End:   start.AddDate(0, 0, days),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (optional)")
	cmd.Flags().StringArrayVar(&calendars, "calendar", nil, "calendar file, optionally with a label: file.ics,Alice (repeatable)")
	cmd.Flags().IntVar(&duration, "duration", 0, "meeting duration in minutes")
	cmd.Flags().IntVar(&buffer, "buffer", 0, "buffer minutes between meetings")
	cmd.Flags().StringVar(&from, "from", "", "search start date (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&days, "days", 0, "number of days to search")
	cmd.Flags().StringVar(&rangeStart, "business-start", "", "business hours start (HH:MM)")
	cmd.Flags().StringVar(&rangeEnd, "business-end", "", "business hours end (HH:MM)")
	cmd.Flags().BoolVar(&weekends, "weekends", false, "include weekends in the search")
	cmd.Flags().StringArrayVar(&excluded, "exclude", nil, "excluded date (YYYY-MM-DD, repeatable)")
	cmd.Flags().StringArrayVar(&preferred, "prefer-tz", nil, "preferred timezone for scoring (repeatable)")
	return cmd
}

func newServeCmd() *cobra.Command {
	var configPath string
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scheduling HTTP API",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("effective config",
				"listen", cfg.Listen,
				"timezone", cfg.Timezone,
				"session_ttl_minutes", cfg.SessionTTLMinutes,
				"sweep_cron", cfg.SweepCron,
			)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				appLog.Info("signal received, shutting down", "signal", sig.String())
				cancel()
			}()

			store := session.NewStore(time.Duration(cfg.SessionTTLMinutes) * time.Minute)

			sweeper := cron.New()
			if _, err := sweeper.AddFunc(cfg.SweepCron, func() { store.Sweep() }); err != nil {
				return fmt.Errorf("bad sweep_cron %q: %w", cfg.SweepCron, err)
			}
			sweeper.Start()
			defer sweeper.Stop()

			return web.Serve(ctx, cfg, store)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (optional)")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

func loadCalendar(path, label string) (*model.ParticipantCalendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if label == "" {
		label = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	cal, err := ical.Parse(string(data), label)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cal, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pick(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func pickStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
