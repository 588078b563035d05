package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/goflagship-sdk/internal/simulator"
	"github.com/TimurManjosov/goflagship-sdk/internal/telemetry"
)

var simAddr string

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a local flag server for development",
	Long: `Sim starts an in-memory server speaking the same wire protocol the
runtime talks to in production: evaluated flag fetches with ETag
revalidation, flag upserts, and a prompt push stream. Useful for
developing against the SDK without a real backend.`,
	RunE: runSim,
}

func init() {
	simCmd.Flags().StringVar(&simAddr, "addr", ":8080", "Address to listen on")
	rootCmd.AddCommand(simCmd)
}

func runSim(cmd *cobra.Command, args []string) error {
	telemetry.Init()
	logger := newLogger()
	s := simulator.NewServer(logger)

	srv := &http.Server{
		Addr:         simAddr,
		Handler:      s.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 0, // streaming endpoints stay open
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", simAddr).Msg("simulator listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShut)
	logger.Info().Msg("simulator stopped")
	return nil
}
