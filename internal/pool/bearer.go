package pool

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
)

// bearerTokenSource wraps a KindBearer credential in an oauth2.TokenSource,
// the same OnTokenChange-persists-back-to-disk shape the teacher's
// graph.TokenSourceFromPath uses, generalized from one token file to the
// Credential Store (C1). Silent refresh (refresh_token grant) runs the
// first time the returned source's Token() is called past the credential's
// expiry; the refreshed token is persisted before Token() returns.
func bearerTokenSource(ctx context.Context, driveID ids.DriveID, cred credstore.Credential, credStore *credstore.Store, logger *slog.Logger) oauth2.TokenSource {
	cfg := &oauth2.Config{
		Endpoint: oauth2.Endpoint{TokenURL: cred.Meta["token_url"]},
		// Called by ReuseTokenSource after each silent refresh, outside its mutex.
		OnTokenChange: func(tok *oauth2.Token) {
			refreshed := credstore.Credential{
				Kind:          credstore.KindBearer,
				Payload:       []byte(tok.AccessToken),
				ExpiresAt:     tok.Expiry,
				RefreshHandle: tok.RefreshToken,
				Meta:          cred.Meta,
			}

			if err := credStore.Save(driveID, refreshed); err != nil {
				logger.Warn("pool: persisting refreshed bearer credential",
					slog.String("drive_id", driveID.String()), slog.String("error", err.Error()))
				return
			}

			logger.Info("pool: bearer credential refreshed",
				slog.String("drive_id", driveID.String()), slog.Time("new_expiry", tok.Expiry))
		},
	}

	tok := &oauth2.Token{
		AccessToken:  string(cred.Payload),
		RefreshToken: cred.RefreshHandle,
		Expiry:       cred.ExpiresAt,
	}

	return cfg.TokenSource(ctx, tok)
}
