package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmuoria/ranksense/internal/ingestion"
)

var gmailAuthCmd = &cobra.Command{
	Use:   "gmail-auth",
	Short: "Authorize read-only Gmail access and cache the OAuth token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return gmailAuth(cmd.Context(), force)
	},
}

func init() {
	rootCmd.AddCommand(gmailAuthCmd)

	gmailAuthCmd.Flags().BoolP("force", "f", false, "discard a cached token and authorize again")
}

func gmailAuth(ctx context.Context, force bool) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}

	if force {
		if err := os.Remove(cfg.Gmail.TokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing cached token: %w", err)
		}
	}

	if _, err := ingestion.NewGmailHandler(ctx, cfg.Gmail, cfg.UploadsDir, promptCode, log); err != nil {
		return err
	}

	log.Info("gmail access authorized", zap.String("token", cfg.Gmail.TokenFile))
	return nil
}

func promptCode(authURL string) (string, error) {
	fmt.Fprintf(os.Stderr, "Go to the following link in your browser then paste the authorization code:\n%s\n\n", authURL)

	prompt := promptui.Prompt{
		Label: "Authorization code",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("code is required")
			}
			return nil
		},
	}
	return prompt.Run()
}
