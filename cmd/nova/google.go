package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/nova/internal/config"
	"github.com/kalambet/nova/internal/google"
)

const loginTimeout = 5 * time.Minute

var googleCmd = &cobra.Command{
	Use:   "google",
	Short: "Link a Google account for inbox, calendar and mail",
}

var googleLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize nova to read Gmail and Calendar and to send mail",
	Long: `Authorize nova with Google.

Set google.client_id with "nova config set" and google.client_secret with
"nova config set-secret" first. The consent page redirects to a temporary
listener on 127.0.0.1; the refresh token is stored in the secrets file.
Restart the server afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		creds := google.Credentials{ClientID: cfg.Google.ClientID, ClientSecret: cfg.Google.ClientSecret}
		if !creds.Configured() {
			return errors.New("google.client_id and google.client_secret must be set first")
		}

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("starting callback listener: %w", err)
		}
		redirect := fmt.Sprintf("http://%s/callback", ln.Addr().String())
		oauthCfg := google.OAuthConfig(creds, redirect)

		state, err := google.NewState()
		if err != nil {
			ln.Close()
			return err
		}

		printStep("Open this URL in your browser to authorize nova:")
		fmt.Println(google.AuthURL(oauthCfg, state))

		ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
		defer cancel()

		code, err := waitForCode(ctx, ln, state)
		if err != nil {
			return err
		}

		token, err := google.Exchange(ctx, oauthCfg, code)
		if err != nil {
			return err
		}
		if err := config.SetSecret(config.NewSecretStore(), "google.refresh_token", token); err != nil {
			return fmt.Errorf("storing refresh token: %w", err)
		}

		printSuccess("Google account linked. Restart nova to use it.")
		return nil
	},
}

// waitForCode serves the OAuth redirect on ln until a callback with the
// expected state arrives or ctx ends. The listener is closed on return.
func waitForCode(ctx context.Context, ln net.Listener, state string) (string, error) {
	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
			http.Error(w, "Authorization failed. You can close this window.", http.StatusForbidden)
		case q.Get("code") == "":
			res.err = errors.New("callback carried no code")
			http.Error(w, "Missing code.", http.StatusBadRequest)
		default:
			res.code = q.Get("code")
			fmt.Fprintln(w, "nova is authorized. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for authorization: %w", ctx.Err())
	case res := <-results:
		return res.code, res.err
	}
}

var googleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a Google account is linked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		printStatus("Google", "%s", googleModeLabel(googleMode(cfg)))
		if cfg.Google.ClientID != "" {
			printStatus("Client ID", "%s", cfg.Google.ClientID)
		}
		return nil
	},
}

func init() {
	googleCmd.AddCommand(googleLoginCmd)
	googleCmd.AddCommand(googleStatusCmd)
}
