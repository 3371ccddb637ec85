package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sonil/dashboard/internal/config"
	"sonil/dashboard/internal/export"
	"sonil/dashboard/internal/pivot"
	"sonil/dashboard/internal/upstream"
)

const passwordEnv = "SONIL_PASSWORD"

type reportCmd struct {
	profilesPath string
	profile      string
	baseURL      string
	username     string
	password     string
	format       string
	out          string
	search       string
	sector       string
	area         string
	filters      map[string]string
	limit        int
	timeout      time.Duration
	verbose      bool
}

func newReportCmd() *cobra.Command {
	rc := &reportCmd{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Fetch a report from the upstream service and print it",
	}

	cmd.PersistentFlags().StringVar(&rc.profilesPath, "profiles", config.DefaultProfilesPath(), "Path to the profiles file")
	cmd.PersistentFlags().StringVar(&rc.profile, "profile", "default", "Profile to use")
	cmd.PersistentFlags().StringVar(&rc.baseURL, "base-url", "", "Upstream API base URL (overrides the profile)")
	cmd.PersistentFlags().StringVar(&rc.username, "username", "", "Upstream username (overrides the profile)")
	cmd.PersistentFlags().StringVar(&rc.password, "password", "", "Upstream password (defaults to $"+passwordEnv+")")
	cmd.PersistentFlags().StringVar(&rc.format, "format", "table", "Output format: table, csv or xlsx")
	cmd.PersistentFlags().StringVar(&rc.out, "out", "", "Write to this file instead of stdout")
	cmd.PersistentFlags().StringVar(&rc.search, "search", "", "Only rows whose label contains this text")
	cmd.PersistentFlags().StringVar(&rc.sector, "sector", "", "Only rows of this sector")
	cmd.PersistentFlags().StringVar(&rc.area, "area", "", "Only rows of this area")
	cmd.PersistentFlags().StringToStringVar(&rc.filters, "filter", nil, "Extra group filters as key=value")
	cmd.PersistentFlags().IntVar(&rc.limit, "limit", 0, "Number of records to request")
	cmd.PersistentFlags().DurationVar(&rc.timeout, "timeout", 60*time.Second, "Overall deadline")
	cmd.PersistentFlags().BoolVarP(&rc.verbose, "verbose", "v", false, "Log upstream requests")

	cmd.AddCommand(&cobra.Command{
		Use:   "distribution",
		Short: "Input distribution per sector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.run(cmd, pivot.Distribution)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "progress",
		Short: "Weekly registrations per technician",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.run(cmd, pivot.Progress)
		},
	})

	return cmd
}

func (rc *reportCmd) run(cmd *cobra.Command, mode pivot.Mode) error {
	format := strings.ToLower(strings.TrimSpace(rc.format))
	if format != "table" && format != "csv" && format != "xlsx" {
		return fmt.Errorf("unsupported format %q: use table, csv or xlsx", rc.format)
	}
	if format == "xlsx" && rc.out == "" {
		return errors.New("--out is required for xlsx output")
	}

	profile, err := rc.resolveProfile()
	if err != nil {
		return err
	}
	password := rc.password
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if profile.Username == "" || password == "" {
		return fmt.Errorf("username and password are required (profile, --username, --password or $%s)", passwordEnv)
	}

	level := zerolog.WarnLevel
	if rc.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()
	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background()), rc.timeout)
	defer cancel()

	client := upstream.NewClient(upstream.Config{
		BaseURL:      profile.BaseURL,
		FarmInputsID: profile.FarmInputsID,
		ProgressID:   profile.ProgressID,
	}, nil)

	sess, err := client.Login(ctx, profile.Username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	report, skipped, err := rc.fetch(ctx, client, sess.Token, mode)
	if err != nil {
		return err
	}
	if skipped > 0 {
		logger.Warn().Int("skipped", skipped).Msg("records failed validation")
	}
	if report.Empty() {
		logger.Warn().Msg("no rows match the filters")
	}

	return rc.write(cmd.OutOrStdout(), format, report)
}

func (rc *reportCmd) resolveProfile() (config.Profile, error) {
	var profile config.Profile
	profiles, err := config.LoadProfiles(rc.profilesPath)
	switch {
	case err == nil:
		profile, err = profiles.Get(rc.profile)
		if err != nil && rc.baseURL == "" {
			return config.Profile{}, err
		}
	case rc.baseURL == "":
		return config.Profile{}, err
	}

	if rc.baseURL != "" {
		profile.BaseURL = rc.baseURL
	}
	if rc.username != "" {
		profile.Username = rc.username
	}
	return profile, nil
}

func (rc *reportCmd) filterSpec() pivot.FilterSpec {
	spec := pivot.FilterSpec{}
	for k, v := range rc.filters {
		spec[k] = v
	}
	if rc.search != "" {
		spec[pivot.SearchFilter] = rc.search
	}
	if rc.sector != "" {
		spec[upstream.GroupSector] = rc.sector
	}
	if rc.area != "" {
		spec[upstream.GroupArea] = rc.area
	}
	return spec
}

func (rc *reportCmd) fetch(ctx context.Context, client *upstream.Client, token string, mode pivot.Mode) (pivot.Report, int, error) {
	if mode == pivot.Progress {
		res, err := client.FetchProgress(ctx, token, upstream.ProgressQuery{Limit: rc.limit})
		if err != nil {
			return pivot.Report{}, 0, fmt.Errorf("fetch progress: %w", err)
		}
		return pivot.BuildReport(res.Dataset, rc.filterSpec(), mode), len(res.Invalid), nil
	}

	res, err := client.FetchDistribution(ctx, token, upstream.DistributionQuery{Limit: rc.limit})
	if err != nil {
		return pivot.Report{}, 0, fmt.Errorf("fetch distribution: %w", err)
	}
	return pivot.BuildReport(res.Dataset, rc.filterSpec(), mode), len(res.Invalid), nil
}

func (rc *reportCmd) write(stdout io.Writer, format string, report pivot.Report) (err error) {
	w := stdout
	if rc.out != "" {
		f, createErr := os.Create(rc.out)
		if createErr != nil {
			return fmt.Errorf("create %s: %w", rc.out, createErr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close %s: %w", rc.out, cerr)
			}
		}()
		w = f
	}

	labels := export.DefaultLabels(report.Mode)
	switch format {
	case "csv":
		return export.WriteCSV(w, report, labels)
	case "xlsx":
		return export.WriteXLSX(w, report, labels)
	default:
		_, err := fmt.Fprintln(w, renderTable(export.Layout(report, labels)))
		return err
	}
}
