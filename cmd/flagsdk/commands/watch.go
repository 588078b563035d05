package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/goflagship-sdk/internal/cli"
	"github.com/TimurManjosov/goflagship-sdk/internal/config"
	"github.com/TimurManjosov/goflagship-sdk/internal/fingerprint"
	"github.com/TimurManjosov/goflagship-sdk/internal/flags"
	"github.com/TimurManjosov/goflagship-sdk/internal/sdk"
)

var (
	watchUser    string
	watchCompany string
	watchAttrs   []string
	watchFollow  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Resolve flags for a user context and optionally follow updates",
	Long: `Watch resolves the flag set for the given context and prints it.

With --follow it keeps the runtime alive, re-resolving on an interval so
stale entries revalidate, and reprints whenever the flag set changes.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchUser, "user", "", "User id for the evaluation context (required)")
	watchCmd.Flags().StringVar(&watchCompany, "company", "", "Company id for the evaluation context")
	watchCmd.Flags().StringSliceVar(&watchAttrs, "attr", nil, "Extra user attribute as key=value (repeatable)")
	watchCmd.Flags().BoolVar(&watchFollow, "follow", false, "Keep running and reprint on flag updates")
	_ = watchCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(watchCmd)
}

func buildContext() fingerprint.Context {
	user := fingerprint.Attributes{"id": watchUser}
	for _, pair := range watchAttrs {
		k, v, ok := strings.Cut(pair, "=")
		if ok && k != "" {
			user[k] = v
		}
	}
	ectx := fingerprint.Context{fingerprint.ActorUser: user}
	if watchCompany != "" {
		ectx[fingerprint.ActorCompany] = fingerprint.Attributes{"id": watchCompany}
	}
	return ectx
}

func runWatch(cmd *cobra.Command, args []string) error {
	url, key, err := connection()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.BaseURL = url
	cfg.APIKey = key

	logger := newLogger()
	client, err := sdk.New(sdk.Options{
		Config:  cfg,
		Context: buildContext(),
		Logger:  &logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	set := client.Resolve(context.Background(), flags.ResolveOptions{})
	if err := cli.PrintFlagSet(set, cli.OutputFormat(format)); err != nil {
		return err
	}
	if !watchFollow {
		return nil
	}

	updates := make(chan flags.FlagSet, 4)
	off := client.On(flags.EventUpdated, func(p any) error {
		updates <- p.(flags.UpdatedEvent).Flags
		return nil
	})
	defer off()

	// Poll at the freshness interval so stale entries revalidate while we
	// wait for pushed updates.
	ticker := time.NewTicker(cfg.Freshness())
	defer ticker.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case next := <-updates:
			fmt.Println()
			if err := cli.PrintFlagSet(next, cli.OutputFormat(format)); err != nil {
				return err
			}
		case <-ticker.C:
			client.Resolve(context.Background(), flags.ResolveOptions{})
		case <-stop:
			return nil
		}
	}
}
