package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/haikubot/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/haikubot/backend/internal/haiku"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newAddCommand() *cobra.Command {
	var (
		author string
		posted bool
		date   string
	)
	cmd := &cobra.Command{
		Use:   "add <haiku>",
		Short: "Store a haiku; use \\n or quoted newlines between lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := haiku.InsertRequest{
				Text:   strings.ReplaceAll(args[0], `\n`, "\n"),
				Author: author,
				Posted: posted,
			}
			if date != "" {
				parsed, err := time.Parse(time.RFC3339, date)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				request.Date = parsed
			}

			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.close()

			record, err := app.store.Insert(cmd.Context(), request)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored haiku %s by %s\n", color.New(color.FgGreen).Sprintf("#%d", record.ID), record.Author)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "Author display name")
	cmd.Flags().BoolVar(&posted, "posted", false, "Mark the haiku as already posted")
	cmd.Flags().StringVar(&date, "date", "", "Explicit RFC3339 timestamp (defaults to now)")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func newStatsCommand() *cobra.Command {
	var (
		top   int
		weeks int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Rank authors by number of stored haiku",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.close()

			stats, err := app.store.GetStats(cmd.Context(), top)
			if err != nil {
				return err
			}
			renderStats(cmd.OutOrStdout(), stats)

			if weeks > 0 {
				recent, err := app.store.GetAllWithinWeeks(cmd.Context(), weeks)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d haiku in the last %d week(s)\n", len(recent), weeks)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 0, "Only show the N most prolific authors")
	cmd.Flags().IntVar(&weeks, "weeks", 0, "Also count haiku stored within the last N weeks")
	return cmd
}

func newUnpostedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unposted",
		Short: "List haiku waiting to be posted, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.close()

			records, err := app.store.GetUnposted(cmd.Context())
			if err != nil {
				return err
			}
			renderRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}
}

func newMarkPostedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-posted <id>",
		Short: "Flag a haiku as posted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.store.SetPosted(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "haiku %s marked posted\n", color.New(color.FgGreen).Sprintf("#%d", id))
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a bot client",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.config.RequireSigningSecret(); err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(app.config.SigningSecret),
				Issuer:        app.config.TokenIssuer,
				TokenTTL:      app.config.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.IssueToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "poster", "Client name embedded in the token")
	return cmd
}

func renderStats(out io.Writer, stats []haiku.AuthorStat) {
	if len(stats) == 0 {
		fmt.Fprintln(out, color.New(color.FgYellow).Sprint("no haiku stored yet"))
		return
	}
	for index, stat := range stats {
		rank := color.New(color.FgHiMagenta).Sprintf("%2d.", index+1)
		fmt.Fprintf(out, "%s %-32s %s\n", rank, stat.Author, color.New(color.FgCyan).Sprint(stat.Count))
	}
}

func renderRecords(out io.Writer, records []haiku.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, color.New(color.FgYellow).Sprint("nothing waiting"))
		return
	}
	for _, record := range records {
		header := color.New(color.FgGreen).Sprintf("#%d", record.ID)
		fmt.Fprintf(out, "%s %s (%s)\n", header, record.Author, record.Date.Format(time.DateOnly))
		for _, line := range strings.Split(record.Text, "\n") {
			fmt.Fprintf(out, "    %s\n", line)
		}
	}
}
