package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/semmidev/backuppilot/internal/usecase"
)

// GoogleOAuthService runs the consent flow that produces the refresh token
// stored in a GOOGLE_DRIVE destination.
type GoogleOAuthService struct {
	config     *oauth2.Config
	logger     usecase.Logger
	state      string
	tokens     chan *oauth2.Token
	authServer *http.Server
}

func NewGoogleOAuthService(logger usecase.Logger, clientSecretPath string) (*GoogleOAuthService, error) {
	if clientSecretPath == "" {
		return nil, errors.New("google_oauth.client_secret_file is not configured")
	}

	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return newGoogleOAuthService(cfg, logger), nil
}

func newGoogleOAuthService(cfg *oauth2.Config, logger usecase.Logger) *GoogleOAuthService {
	return &GoogleOAuthService{
		config: cfg,
		logger: logger,
		state:  uuid.NewString(),
		tokens: make(chan *oauth2.Token, 1),
	}
}

// ConsentURL is where the operator starts the flow.
func (s *GoogleOAuthService) ConsentURL() string {
	return s.config.AuthCodeURL(s.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Tokens delivers the first token obtained through the callback.
func (s *GoogleOAuthService) Tokens() <-chan *oauth2.Token {
	return s.tokens
}

func (s *GoogleOAuthService) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/auth/google/drive", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.ConsentURL(), http.StatusTemporaryRedirect)
	})

	r.Get("/auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != s.state {
			http.Error(w, "invalid state parameter", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		token, err := s.config.Exchange(r.Context(), code)
		if err != nil {
			s.logger.Errorf("Google token exchange failed: %v", err)
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			return
		}

		if token.RefreshToken == "" {
			fmt.Fprintln(w, "⚠️ No refresh token returned. Revoke app access & re-authorize.")
			return
		}

		select {
		case s.tokens <- token:
		default:
		}
		fmt.Fprintln(w, "✅ Authorization complete. The refresh token was printed in the terminal; you can close this window.")
	})

	return r
}

func (s *GoogleOAuthService) StartAuthServer(ctx context.Context, addr string) error {
	s.authServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Infof("Google Drive OAuth server listening on %s", s.authServer.Addr)
		if err := s.authServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("OAuth server error: %v", err)
		}
	}()

	return nil
}

func (s *GoogleOAuthService) Shutdown(ctx context.Context) error {
	if s.authServer == nil {
		return nil
	}

	if err := s.authServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown OAuth server: %w", err)
	}
	s.logger.Infof("OAuth server stopped successfully")
	return nil
}
