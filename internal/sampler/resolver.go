package sampler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ProcessLister returns the names of running processes.
type ProcessLister func(ctx context.Context) ([]string, error)

// ProcessResolver names apps from configured aliases, then from the running
// process table. Hits are cached so closed apps stay resolvable for the TTL.
type ProcessResolver struct {
	aliases map[string]string
	cache   *expirable.LRU[string, string]
	list    ProcessLister
}

// NewProcessResolver creates a resolver backed by gopsutil.
func NewProcessResolver(aliases map[string]string, size int, ttl time.Duration) *ProcessResolver {
	return newProcessResolver(aliases, size, ttl, runningProcessNames)
}

func newProcessResolver(aliases map[string]string, size int, ttl time.Duration, list ProcessLister) *ProcessResolver {
	if size <= 0 {
		size = 256
	}
	return &ProcessResolver{
		aliases: aliases,
		cache:   expirable.NewLRU[string, string](size, nil, ttl),
		list:    list,
	}
}

func (r *ProcessResolver) DisplayName(ctx context.Context, pkg string) (string, error) {
	if name, ok := r.aliases[pkg]; ok && name != "" {
		return name, nil
	}
	if name, ok := r.cache.Get(pkg); ok {
		return name, nil
	}

	names, err := r.list(ctx)
	if err != nil {
		return "", fmt.Errorf("list processes: %w", err)
	}
	for _, name := range names {
		if name == pkg {
			label := r.label(pkg)
			r.cache.Add(pkg, label)
			return label, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnresolvable, pkg)
}

// label turns "gnome-terminal-server" into "Gnome Terminal Server".
func (r *ProcessResolver) label(pkg string) string {
	base := strings.TrimSuffix(pkg, ".exe")
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	// Casers carry state and are not shared.
	return cases.Title(language.English).String(base)
}

func runningProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
