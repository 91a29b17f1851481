// admin runs one operator action against the configured store backend.
//
//	admin sessions <userId>        list the user's sessions from the last 24h
//	admin devices <userId>         list the user's registered devices
//	admin trust-device <deviceId>  mark a device trusted
//	admin terminate-all <userId>   end every active session of the user
//	admin require-otp <userId>     force OTP on the user's next login
//	admin keygen                   print a new Ed25519 pair for JWT_PRIVATE_KEY / JWT_PUBLIC_KEY
//
// Except for keygen, STORE_BACKEND must be postgres or redis; the memory backend has nothing to administer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"session-trust-engine/internal/audit"
	"session-trust-engine/internal/config"
	"session-trust-engine/internal/engine"
	"session-trust-engine/internal/security"
)

const commandTimeout = 30 * time.Second

var errUsage = errors.New("usage: admin [-reason text] <sessions|devices|trust-device|terminate-all|require-otp> <id> | admin keygen")

func main() {
	reason := flag.String("reason", "", "operator note stored with the audit entry")
	flag.Parse()

	if flag.Arg(0) == "keygen" {
		if err := keygen(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if cfg.StoreBackend == config.BackendMemory {
		logger.Error("admin: STORE_BACKEND=memory has no shared state; use postgres or redis")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	backend, err := engine.OpenBackend(ctx, cfg)
	if err != nil {
		logger.Error("admin: open backend", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	e := engine.New(backend.Repos, engine.Options{MaxSessions: cfg.MaxSessions, SessionTTL: cfg.SessionTTL()}, logger)
	if err := run(ctx, e, flag.Args(), *reason, os.Stdout); err != nil {
		logger.Error("admin", "error", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, e *engine.Engine, args []string, reason string, out io.Writer) error {
	if len(args) != 2 || args[1] == "" {
		return errUsage
	}
	cmd, id := args[0], args[1]
	note := auditNote(reason)

	switch cmd {
	case "sessions":
		list, err := e.Sessions.List(ctx, id)
		if err != nil {
			return err
		}
		return writeJSON(out, list)
	case "devices":
		list, err := e.Devices.ListByUser(ctx, id)
		if err != nil {
			return err
		}
		return writeJSON(out, list)
	case "trust-device":
		if err := e.Devices.MarkTrusted(ctx, id); err != nil {
			return err
		}
		d, err := e.Devices.Get(ctx, id)
		if err != nil {
			return err
		}
		e.Audit.LogEvent(ctx, d.UserID, audit.ActionDeviceTrusted, audit.ResourceDevice, note)
		return writeJSON(out, d)
	case "terminate-all":
		n, err := e.Revocation.TerminateAll(ctx, id)
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]int{"terminatedCount": n})
	case "require-otp":
		if err := e.Risk.RequireOTP(ctx, id); err != nil {
			return err
		}
		e.Audit.LogEvent(ctx, id, audit.ActionOTPRequired, audit.ResourceUser, note)
		return writeJSON(out, map[string]bool{"ok": true})
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// keygen writes the pair as env lines with escaped newlines, ready for a .env file.
func keygen(w io.Writer) error {
	priv, pub, err := security.GenerateKeyPair()
	if err != nil {
		return err
	}
	escape := func(s string) string { return strings.ReplaceAll(strings.TrimSpace(s), "\n", `\n`) }
	_, err = fmt.Fprintf(w, "JWT_PRIVATE_KEY=\"%s\"\nJWT_PUBLIC_KEY=\"%s\"\n", escape(priv), escape(pub))
	return err
}

func auditNote(reason string) string {
	b, err := json.Marshal(map[string]string{"source": "admin-cli", "reason": reason})
	if err != nil {
		return ""
	}
	return string(b)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
