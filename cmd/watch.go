package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"grimm.is/rnsgate/internal/brand"
	"grimm.is/rnsgate/internal/client"
)

// remoteFlags are shared by the commands that talk to the HTTP API.
type remoteFlags struct {
	url         string
	key         string
	secret      string
	fingerprint string
}

func (f *remoteFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.url, "remote", "http://127.0.0.1:8085", "API base URL")
	fs.StringVar(&f.url, "r", "http://127.0.0.1:8085", "API base URL (short)")
	fs.StringVar(&f.key, "api-key", brand.Env("API_KEY"), "API key")
	fs.StringVar(&f.key, "k", brand.Env("API_KEY"), "API key (short)")
	fs.StringVar(&f.secret, "api-secret", brand.Env("API_SECRET"), "API secret")
	fs.StringVar(&f.fingerprint, "fingerprint", "", "Expected TLS certificate fingerprint (SHA-256)")
}

func (f *remoteFlags) client() *client.HTTPClient {
	opts := []client.ClientOption{client.WithCredentials(f.key, f.secret)}
	if f.fingerprint != "" {
		opts = append(opts, client.WithFingerprint(f.fingerprint))
	}
	return client.NewHTTPClient(f.url, opts...)
}

// RunWatch follows the status stream of a running API and prints every
// frame until interrupted.
func RunWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	var remote remoteFlags
	remote.register(fs)
	topics := fs.String("topics", "status,settings", "Comma-separated topics")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return remote.client().Stream(ctx, strings.Split(*topics, ","), func(m client.Message) {
		printFrame(os.Stdout, m)
	})
}

func printFrame(w io.Writer, m client.Message) {
	Printer.Fprintf(w, "%s %-8s %s\n", time.Now().Format(time.TimeOnly), m.Topic, compact(m.Data))
}

// RunQuery calls a utilities or diagnostics endpoint of a running API:
//
//	rnsgate query rnpath hash=4faf1b2e0a077e6a9d92fa051f256038
//	rnsgate query diagnostics/interfaces
func RunQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	var remote remoteFlags
	remote.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: %s query [options] <utility|diagnostics/name> [key=value ...]", brand.BinaryName)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	return query(ctx, os.Stdout, remote.client(), fs.Arg(0), fs.Args()[1:])
}

func query(ctx context.Context, w io.Writer, c *client.HTTPClient, target string, kv []string) error {
	var (
		env *client.Envelope
		err error
	)
	if name, ok := strings.CutPrefix(target, "diagnostics/"); ok {
		env, err = c.Diagnostic(ctx, name)
	} else {
		params := make(map[string]string, len(kv))
		for _, p := range kv {
			k, v, found := strings.Cut(p, "=")
			if !found {
				return fmt.Errorf("parameter %q is not key=value", p)
			}
			params[k] = v
		}
		env, err = c.Utility(ctx, strings.TrimPrefix(target, "utilities/"), params)
	}
	if err != nil {
		return err
	}
	if env.Status != "ok" {
		return errors.New(env.Message)
	}

	// Plain text output comes back as {"output": "..."} or {"raw": "..."}.
	var text map[string]json.RawMessage
	if json.Unmarshal(env.Data, &text) == nil && len(text) == 1 {
		for _, key := range []string{"output", "raw"} {
			var s string
			if json.Unmarshal(text[key], &s) == nil && text[key] != nil {
				Printer.Fprintln(w, s)
				return nil
			}
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, env.Data, "", "  "); err != nil {
		Printer.Fprintln(w, string(env.Data))
		return nil
	}
	Printer.Fprintln(w, pretty.String())
	return nil
}

func compact(raw json.RawMessage) string {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	return b.String()
}
