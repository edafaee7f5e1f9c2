package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zero-day-ai/modulekit/activation"
)

// Registry is the part of *registry.Registry the checks read.
type Registry interface {
	IsOpen() bool
	State() activation.State
}

// StoreCheck verifies that an activation store answers Load within the
// context deadline. A store that is reachable but has never been written is
// healthy.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
//	defer cancel()
//	status := health.StoreCheck(ctx, store)
func StoreCheck(ctx context.Context, store activation.Store) Status {
	if store == nil {
		return Unhealthy("activation store is not configured", nil)
	}

	start := time.Now()
	state, err := store.Load(ctx)
	elapsed := time.Since(start)
	if err != nil {
		return Unhealthy("activation store is unavailable", map[string]any{
			"error":      err.Error(),
			"latency_ms": elapsed.Milliseconds(),
		})
	}

	return Healthy(fmt.Sprintf("activation store answered in %s (%d persisted flags)", elapsed.Round(time.Millisecond), len(state)))
}

// RegistryCheck reports a registry that has not been opened yet as
// unhealthy: until Open succeeds every transition is refused.
func RegistryCheck(reg Registry) Status {
	if reg == nil {
		return Unhealthy("module registry is not configured", nil)
	}
	if !reg.IsOpen() {
		return Unhealthy("module registry is not open", nil)
	}

	state := reg.State()
	return Healthy(fmt.Sprintf("module registry open, %d of %d modules enabled", len(state.Enabled()), len(state)))
}

// NetworkCheck dials host:port over TCP, typically the Redis or etcd
// backend behind the activation store. A nil ctx gets a five second timeout.
func NetworkCheck(ctx context.Context, host string, port int) Status {
	if host == "" || port < 1 || port > 65535 {
		return Unhealthy(fmt.Sprintf("invalid backend address %q:%d", host, port), nil)
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return Unhealthy("backend "+addr+" is unreachable", map[string]any{"error": err.Error()})
	}
	_ = conn.Close()
	return Healthy("backend " + addr + " is reachable")
}

// WritableDirCheck verifies that a file store can write next to path by
// creating and removing a scratch file in its directory.
func WritableDirCheck(path string) Status {
	if path == "" {
		return Unhealthy("state file path is empty", nil)
	}

	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".modulekit-health-*")
	if err != nil {
		return Unhealthy("state directory "+dir+" is not writable", map[string]any{"error": err.Error()})
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return Healthy("state directory " + dir + " is writable")
}

// Combine folds statuses into one: the worst status wins and the message
// lists every check that was not healthy.
func Combine(checks ...Status) Status {
	worst := StatusHealthy
	var problems []string
	for _, c := range checks {
		if c.IsHealthy() {
			continue
		}
		msg := c.Message
		if msg == "" {
			msg = c.Status
		}
		problems = append(problems, msg)
		if c.IsUnhealthy() || worst == StatusHealthy {
			worst = c.Status
		}
	}

	if len(problems) == 0 {
		return Healthy(fmt.Sprintf("%d check(s) passed", len(checks)))
	}
	details := map[string]any{"checks": len(checks), "problems": problems}
	return Status{Status: worst, Message: strings.Join(problems, "; "), Details: details}
}
