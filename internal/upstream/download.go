package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
)

// DownloadFile resolves a pick handle to a signed URL and streams its bytes
// to w (spec.md §4.7 step 5 "download it byte-for-byte"). The signed URL is
// pre-authenticated by the upstream, so no credential header is attached to
// the streaming request — only the signed-URL resolution call carries one.
func (c *Client) DownloadFile(
	ctx context.Context, driveID ids.DriveID, cred credstore.Credential, pickHandle string, w io.Writer,
) (int64, error) {
	signedURL, _, err := c.ResolveSignedURL(ctx, driveID, cred, pickHandle)
	if err != nil {
		return 0, fmt.Errorf("upstream: resolving download url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, http.NoBody)
	if err != nil {
		return 0, &Error{Message: err.Error(), Err: ErrTransport}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &Error{Message: err.Error(), Err: ErrTransport}
	}
	defer resp.Body.Close()

	if sentinel := classifyStatus(resp.StatusCode); sentinel != nil {
		return 0, c.buildError(resp, sentinel)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("upstream: streaming download: %w", err)
	}

	return n, nil
}
