package vault

import (
	"cmp"
	"context"
	"net/http"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vyrodovalexey/vaultbackend/internal/observability"
)

// ListOptions narrows a listing request.
type ListOptions struct {
	// SecretEngine is the mount to list. Empty means the configured engine.
	SecretEngine string
}

// Secret is one entry of a listing result.
type Secret struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	ShowURL string `json:"showUrl"`
	EditURL string `json:"editUrl"`
}

// ListSecrets lists every secret below secretPath, descending into folders.
// Results are sorted by path, then name. A path that does not exist returns
// ErrSecretNotFound; an existing empty path returns an empty slice.
func (c *Client) ListSecrets(ctx context.Context, secretPath string, opts ListOptions) ([]Secret, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	secretPath = strings.Trim(secretPath, "/")
	if hasDotSegment(secretPath) {
		return nil, NewVaultError("list", secretPath, ErrInvalidPath)
	}

	engine := strings.Trim(opts.SecretEngine, "/")
	if engine == "" {
		engine = c.config.GetSecretEngine()
	}

	ctx, span := c.startSpan(ctx, "vault.list_secrets",
		attribute.String("vault.engine", engine),
		attribute.String("vault.path", secretPath),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	l := &listing{
		client: c,
		engine: engine,
		sem:    semaphore.NewWeighted(int64(c.config.GetListConcurrency())),
		group:  group,
		items:  make([]Secret, 0),
	}
	group.Go(func() error {
		return l.walk(groupCtx, secretPath, true)
	})

	if err := group.Wait(); err != nil {
		endSpan(span, err)
		return nil, err
	}

	slices.SortFunc(l.items, func(a, b Secret) int {
		if n := cmp.Compare(a.Path, b.Path); n != 0 {
			return n
		}
		return cmp.Compare(a.Name, b.Name)
	})

	span.SetAttributes(attribute.Int("vault.secrets", len(l.items)))
	endSpan(span, nil)
	c.metrics.ObserveListed(len(l.items))

	c.logger.Debug("listed secrets",
		observability.String("engine", engine),
		observability.String("path", secretPath),
		observability.Int("count", len(l.items)),
	)
	return l.items, nil
}

// listing is the state of one recursive ListSecrets call. Folders are walked
// on the errgroup; sem bounds the LIST calls in flight.
type listing struct {
	client *Client
	engine string
	sem    *semaphore.Weighted
	group  *errgroup.Group

	mu    sync.Mutex
	items []Secret
}

func (l *listing) walk(ctx context.Context, dir string, root bool) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	keys, found, err := l.client.listKeys(ctx, l.engine, dir)
	l.sem.Release(1)
	if err != nil {
		return err
	}

	if !found {
		if root {
			return NewVaultErrorWithCode("list", l.client.listPath(l.engine, dir), ErrSecretNotFound, http.StatusNotFound)
		}
		// Folder removed between the parent LIST and this one.
		return nil
	}

	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			sub := path.Join(dir, strings.TrimSuffix(key, "/"))
			l.group.Go(func() error {
				return l.walk(ctx, sub, false)
			})
			continue
		}
		l.add(dir, key)
	}
	return nil
}

func (l *listing) add(dir, name string) {
	secret := Secret{
		Name:    name,
		Path:    dir,
		ShowURL: l.client.uiURL(l.engine, "show", dir, name),
		EditURL: l.client.uiURL(l.engine, "edit", dir, name),
	}

	l.mu.Lock()
	l.items = append(l.items, secret)
	l.mu.Unlock()
}

// listKeys issues one LIST. found is false when Vault answered 404.
func (c *Client) listKeys(ctx context.Context, engine, dir string) (keys []string, found bool, err error) {
	apiPath := c.listPath(engine, dir)

	start := time.Now()
	secret, err := c.api.Logical().ListWithContext(ctx, apiPath)
	c.metrics.RecordRequest("list", statusOf(err), time.Since(start))
	if err != nil {
		return nil, false, wrapResponseError("list", apiPath, err)
	}
	if secret == nil {
		return nil, false, nil
	}

	raw, _ := secret.Data["keys"].([]interface{})
	keys = make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok && s != "" {
			keys = append(keys, s)
		}
	}
	return keys, true, nil
}

func (c *Client) listPath(engine, dir string) string {
	if c.config.GetKVVersion() == 2 {
		return path.Join(engine, "metadata", dir)
	}
	return path.Join(engine, dir)
}

func (c *Client) uiURL(engine, action, dir, name string) string {
	return c.config.UIBaseURL() + "/" + path.Join("ui/vault/secrets", engine, action, dir, name)
}

func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
