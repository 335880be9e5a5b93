package auditlog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"icering/internal/logging"
)

// RetentionPolicy bounds how many audit bundles are kept on disk under the
// cleaner's root, and for how long, counting every robot's bundles together.
type RetentionPolicy struct {
	MaxBundles int
	MaxAge     time.Duration
}

// Cleaner periodically prunes audit bundles under a root directory,
// adapted from the teacher's replay.Cleaner - same sweep-and-log shape,
// simplified since an audit bundle is always a single directory rather
// than a scatter of companion files.
type Cleaner struct {
	mu     sync.Mutex
	root   string
	policy RetentionPolicy
	logger *logging.Logger
	now    func() time.Time
}

// NewCleaner constructs a cleaner for the audit bundles under root.
func NewCleaner(root string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{root: root, policy: policy, logger: logger, now: time.Now}
}

// Run executes retention sweeps on interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single retention sweep, primarily for tests.
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

func (c *Cleaner) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.root)
	if err != nil {
		c.logger.Warn("auditlog retention scan failed", logging.Error(err), logging.String("directory", c.root))
		return
	}

	type bundle struct {
		path    string
		modTime time.Time
	}
	bundles := make([]bundle, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		bundles = append(bundles, bundle{path: filepath.Join(c.root, entry.Name()), modTime: info.ModTime()})
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].modTime.After(bundles[j].modTime) })

	now := c.now()
	for i, b := range bundles {
		age := c.policy.MaxAge > 0 && now.Sub(b.modTime) > c.policy.MaxAge
		overCount := c.policy.MaxBundles > 0 && i >= c.policy.MaxBundles
		if !age && !overCount {
			continue
		}
		if err := os.RemoveAll(b.path); err != nil {
			c.logger.Warn("auditlog retention removal failed", logging.Error(err), logging.String("bundle", b.path))
			continue
		}
		c.logger.Info("auditlog retention removed bundle", logging.String("bundle", b.path))
	}
}
