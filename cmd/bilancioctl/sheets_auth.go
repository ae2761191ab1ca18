package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	gsheet "bilancio/internal/sheets/google"
)

var flagRedirectPort string

var sheetsAuthCmd = &cobra.Command{
	Use:   "sheets-auth",
	Short: "Authorize Google Sheets export with an OAuth user account",
	Long: "Runs the installed-app OAuth flow and saves the token to GOOGLE_OAUTH_TOKEN_FILE (default token.json).\n" +
		"Add http://localhost:<port>/callback to the OAuth client's authorized redirect URIs first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := gsheet.OAuthConfigFromEnv()
		if err != nil {
			return err
		}
		cfg.RedirectURL = "http://localhost:" + flagRedirectPort + "/callback"

		codeCh := make(chan string, 1)
		errCh := make(chan error, 1)
		mux := http.NewServeMux()
		mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
			if e := r.URL.Query().Get("error"); e != "" {
				http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
				select {
				case errCh <- fmt.Errorf("authorization denied: %s", e):
				default:
				}
				return
			}
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			select {
			case codeCh <- r.URL.Query().Get("code"):
			default:
			}
		})
		srv := &http.Server{Addr: ":" + flagRedirectPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				select {
				case errCh <- fmt.Errorf("callback server: %w", err):
				default:
				}
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()

		fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authorize:\n%s\n", cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		defer signal.Stop(sig)

		select {
		case code := <-codeCh:
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			tok, err := cfg.Exchange(ctx, code)
			if err != nil {
				return fmt.Errorf("token exchange: %w", err)
			}
			out := gsheet.TokenFile()
			if err := gsheet.SaveToken(out, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", out)
			return nil
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Minute):
			return errors.New("authorization timed out")
		case <-sig:
			return errors.New("interrupted")
		}
	},
}

func init() {
	port := os.Getenv("OAUTH_REDIRECT_PORT")
	if port == "" {
		port = "8085"
	}
	sheetsAuthCmd.Flags().StringVar(&flagRedirectPort, "port", port, "Local port for the OAuth redirect")
	rootCmd.AddCommand(sheetsAuthCmd)
}
