package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// LoopbackAuthorizer completes the authorization-code flow through a
// temporary HTTP listener on 127.0.0.1, using PKCE.
type LoopbackAuthorizer struct {
	// Out receives the authorization URL.
	Out io.Writer

	// Addr is the listen address. Empty means an ephemeral port on 127.0.0.1.
	Addr string

	// OnListen, when set, is called with the authorization URL once the listener is ready.
	OnListen func(authURL string)
}

var _ Authorizer = (*LoopbackAuthorizer)(nil)

type callbackResult struct {
	code string
	err  error
}

// Authorize prints the consent URL and waits for the browser redirect.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	addr := a.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("starting callback listener: %w", err)
	}

	c := *cfg
	c.RedirectURL = "http://" + ln.Addr().String() + "/"

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := c.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier))

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go srv.Serve(ln)
	defer srv.Close()

	if a.Out != nil {
		fmt.Fprintf(a.Out, "Open the following link in your browser to authorize gcalvault:\n\n%s\n\n", authURL)
	}
	if a.OnListen != nil {
		a.OnListen(authURL)
	}

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := c.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code: %w", err)
		}
		return tok, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}

		var res callbackResult
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
			http.Error(w, "Authorization was denied. You may close this window.", http.StatusForbidden)
		case q.Get("code") == "":
			res.err = errors.New("authorization callback did not include a code")
			http.Error(w, "Missing authorization code.", http.StatusBadRequest)
		default:
			res.code = q.Get("code")
			fmt.Fprintln(w, "Authorization complete. You may close this window and return to gcalvault.")
		}

		select {
		case results <- res:
		default:
		}
	})
}

// PromptAuthorizer prints the consent URL and reads the authorization code
// from In. It suits terminals where no browser can reach a local listener.
type PromptAuthorizer struct {
	In  io.Reader
	Out io.Writer

	// RedirectURL must be registered for the OAuth client. The code is taken
	// from the address bar after the redirect fails to load.
	RedirectURL string
}

var _ Authorizer = (*PromptAuthorizer)(nil)

func (a *PromptAuthorizer) Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	c := *cfg
	c.RedirectURL = a.RedirectURL
	if c.RedirectURL == "" {
		c.RedirectURL = "http://127.0.0.1/"
	}

	verifier := oauth2.GenerateVerifier()
	authURL := c.AuthCodeURL(uuid.NewString(),
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier))

	fmt.Fprintf(a.Out, "Open the following link in your browser to authorize gcalvault:\n\n%s\n\n", authURL)
	fmt.Fprint(a.Out, "Paste the 'code' value from the redirected address: ")

	in, ok := a.In.(*bufio.Reader)
	if !ok {
		in = bufio.NewReader(a.In)
	}
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, fmt.Errorf("reading authorization code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return nil, errors.New("no authorization code entered")
	}

	tok, err := c.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return tok, nil
}
