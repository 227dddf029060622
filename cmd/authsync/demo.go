package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/identity/memory"
	"github.com/MrEthical07/authsync/jwt"
	"github.com/MrEthical07/authsync/middleware"
	promexport "github.com/MrEthical07/authsync/metrics/export/prometheus"
	"github.com/MrEthical07/authsync/session"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run sign-up, sign-in, an authenticated call and an external sign-out in memory",
	RunE:  runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().String("username", "demo", "account username")
	demoCmd.Flags().String("email", "demo@example.com", "account email")
	demoCmd.Flags().String("password", "demo-password", "account password")
	demoCmd.Flags().Bool("metrics", true, "print metrics at the end")
}

// codeBox keeps the confirmation codes the memory provider would have mailed.
type codeBox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeBox) put(username, code string) {
	c.mu.Lock()
	c.codes[username] = code
	c.mu.Unlock()
}

func (c *codeBox) get(username string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[username]
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	username, _ := cmd.Flags().GetString("username")
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	withMetrics, _ := cmd.Flags().GetBool("metrics")
	out := cmd.OutOrStdout()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    key,
		Issuer:        "authsync-demo",
	})
	if err != nil {
		return err
	}

	box := &codeBox{codes: make(map[string]string)}
	providerName = providerMemory
	rt, err := openRuntime(ctx, runtimeOptions{
		metrics:     withMetrics,
		diagnostics: authsync.NewJSONWriterSink(cmd.ErrOrStderr()),
		memoryOpts:  []memory.Option{memory.WithTokenManager(tokens), memory.WithCodeSink(box.put)},
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	api, err := startPointsAPI(tokens)
	if err != nil {
		return err
	}
	defer api.Close()
	client := middleware.NewClient(rt.engine.Tokens(), nil)

	fmt.Fprintf(out, "bootstrap: %s (route %s)\n", rt.engine.Phase(), rt.engine.InitialRoute())
	if err := callAPI(ctx, out, client, api.url); err != nil {
		return err
	}

	rt.flow.ShowSignUp()
	res, err := rt.flow.SubmitSignUp(ctx, email, username, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sign up:   %s\n", res.Message)

	res, err = rt.flow.ConfirmSignUp(ctx, box.get(flowUsername(rt.flow, username)))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "confirm:   %s\n", res.Message)

	res, err = rt.flow.SubmitSignIn(ctx, username, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sign in:   %s (route %s)\n", res.Message, res.Route)
	printSessionInfo(out, rt.engine)
	if err := callAPI(ctx, out, client, api.url); err != nil {
		return err
	}

	cleared := waitAnonymous(rt.engine.Store())
	rt.memory.ForceSignOut()
	select {
	case <-cleared:
	case <-ctx.Done():
		return ctx.Err()
	}
	fmt.Fprintln(out, "external sign-out applied")
	if err := callAPI(ctx, out, client, api.url); err != nil {
		return err
	}

	if withMetrics {
		fmt.Fprintln(out, "---- metrics ----")
		_, _ = io.WriteString(out, promexport.NewPrometheusExporter(rt.engine).Render())
	}
	return nil
}

func flowUsername(flow *authsync.AuthFlow, fallback string) string {
	if p, ok := flow.Pending(); ok {
		return p.Username
	}
	return fallback
}

// waitAnonymous fires once the store reports an anonymous session.
func waitAnonymous(store *session.Store) <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	cancel := store.Watch(func(s session.Session) {
		if !s.Authenticated() {
			once.Do(func() { close(done) })
		}
	})
	go func() {
		<-done
		cancel()
	}()
	return done
}

type pointsAPI struct {
	srv *http.Server
	url string
}

func (a *pointsAPI) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = a.srv.Shutdown(ctx)
}

// startPointsAPI serves GET /points for callers presenting a valid id token.
func startPointsAPI(tokens *jwt.Manager) (*pointsAPI, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/points", func(w http.ResponseWriter, r *http.Request) {
		raw, ok := middleware.HeaderToken(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		claims, err := tokens.Verify(raw)
		if err != nil || claims.TokenUse != jwt.UseID {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, "%s has 42 points", claims.Username)
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("points api stopped", "error", err)
		}
	}()
	return &pointsAPI{srv: srv, url: "http://" + ln.Addr().String() + "/points"}, nil
}

func callAPI(ctx context.Context, w io.Writer, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	fmt.Fprintf(w, "GET /points: %d %s\n", resp.StatusCode, strings.TrimRight(string(body), "\r\n"))
	return nil
}
