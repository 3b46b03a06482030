package main

import (
	"bufio"
	"fmt"
	"strings"

	config "github.com/maheshrc27/reelsync/configs"
	"github.com/maheshrc27/reelsync/internal/service"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"
)

var authCommand = &cobra.Command{
	Use:   "auth",
	Short: "Authorize YouTube uploads and cache the token",
	Long: `Prints the Google consent URL, exchanges the returned code for a token and stores it in --token-file.
The token is encrypted when SECRET_KEY is set.`,
	RunE: authCmd,
}

var authFlagKeys = map[string]string{
	"client-secrets": config.KeyClientSecrets,
	"token-file":     config.KeyTokenFile,
}

var authCode string

func init() {
	f := authCommand.Flags()
	f.String("client-secrets", "", "OAuth client secrets JSON (or GOOGLE_CLIENT_SECRETS)")
	f.String("token-file", "youtube_token.json", "Where the YouTube token is cached")
	f.StringVar(&authCode, "code", "", "Authorization code; prompted for when empty")

	rootCmd.AddCommand(authCommand)
}

func authCmd(cmd *cobra.Command, _ []string) error {
	v := config.NewViper()
	if err := bindFlags(v, cmd, authFlagKeys); err != nil {
		return err
	}

	sessions, err := service.NewSessionService(
		v.GetString(config.KeyClientSecrets),
		v.GetString(config.KeyTokenFile),
		v.GetString(config.KeySecretKey),
	)
	if err != nil {
		return err
	}

	code := authCode
	if code == "" {
		state, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to create state: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Open this URL, approve access and paste the code:\n\n%s\n\nCode: ", sessions.AuthURL(state))

		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}
		code = strings.TrimSpace(line)
	}

	if err := sessions.Exchange(cmd.Context(), code); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Authorization saved to", v.GetString(config.KeyTokenFile))
	return nil
}
