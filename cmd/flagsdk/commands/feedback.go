package commands

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/goflagship-sdk/internal/config"
	"github.com/TimurManjosov/goflagship-sdk/internal/feedback"
	"github.com/TimurManjosov/goflagship-sdk/internal/fingerprint"
	"github.com/TimurManjosov/goflagship-sdk/internal/sdk"
)

var feedbackUser string

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Listen for feedback prompts and answer them in the terminal",
	Long: `Feedback connects the runtime's push channel and renders every
eligible prompt on the terminal. Answering (or just pressing enter to
dismiss) records the completion, so the prompt is never shown again.`,
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackUser, "user", "", "User id receiving the prompts (required)")
	_ = feedbackCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(feedbackCmd)
}

// terminalDisplay renders prompts on stdout and reads the reply from stdin.
type terminalDisplay struct {
	in *bufio.Reader
}

func (d *terminalDisplay) Show(userID string, msg feedback.Message, completed func()) {
	fmt.Printf("\n--- feedback prompt %s ---\n", msg.PromptID)
	fmt.Printf("%s\n", msg.Question)
	fmt.Print("answer (enter to dismiss): ")
	answer, _ := d.in.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer != "" {
		fmt.Printf("thanks! recorded for %s\n", msg.FeatureID)
	}
	completed()
}

func runFeedback(cmd *cobra.Command, args []string) error {
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
		Context: fingerprint.Context{fingerprint.ActorUser: {"id": feedbackUser}},
		Display: &terminalDisplay{in: bufio.NewReader(os.Stdin)},
		Logger:  &logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("listening for prompts for user %s (ctrl-c to stop)\n", feedbackUser)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	return nil
}
