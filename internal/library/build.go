package library

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pders01/lectern/internal/config"
	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/fetch"
	"github.com/pders01/lectern/internal/provider"
	"github.com/pders01/lectern/internal/providers/audio"
	"github.com/pders01/lectern/internal/providers/commentary"
	"github.com/pders01/lectern/internal/providers/local"
	"github.com/pders01/lectern/internal/providers/remote"
	"github.com/pders01/lectern/internal/validation"
)

// Build registers the providers named in cfg and returns a library over them.
// Registration order is local first, then remote, commentary and audio
// sources in the order they are configured.
func Build(cfg *config.Config) (*Library, error) {
	registry := provider.NewRegistry()
	b := &builder{
		cfg:      cfg,
		registry: registry,
		fetcher:  fetch.NewFetcher(cfg.Providers.UserAgent, cfg.Providers.HTTPTimeout),
		urls:     validation.NewEndpointValidator(),
		paths:    validation.NewPermissivePaths(),
	}
	if cfg.Providers.AllowPrivate {
		b.urls = validation.NewPermissiveEndpointValidator()
	}

	if err := b.build(); err != nil {
		b.closeAll()
		return nil, err
	}
	return New(cfg, registry), nil
}

type builder struct {
	cfg      *config.Config
	registry *provider.Registry
	fetcher  *fetch.Fetcher
	urls     *validation.EndpointValidator
	paths    *validation.Paths
}

func (b *builder) build() error {
	if b.cfg.Providers.Local {
		if err := b.local(); err != nil {
			return err
		}
	}

	for _, ep := range b.cfg.Providers.Remote {
		baseURL, err := b.endpoint(ep.Name, ep.BaseURL)
		if err != nil {
			return err
		}
		p, err := remote.New(baseURL, b.fetcher)
		if err != nil {
			return err
		}
		if err := b.register(ep.Name, p); err != nil {
			return err
		}
	}

	for _, ep := range b.cfg.Providers.Commentary {
		indexURL, err := b.endpoint(ep.Name, ep.BaseURL)
		if err != nil {
			return err
		}
		p, err := commentary.New(indexURL, b.fetcher)
		if err != nil {
			return err
		}
		if err := b.register(ep.Name, p); err != nil {
			return err
		}
	}

	for _, feed := range b.cfg.Providers.Audio {
		feedURL, err := b.endpoint(feed.Name, feed.FeedURL)
		if err != nil {
			return err
		}
		p, err := audio.New(feedURL, b.fetcher)
		if err != nil {
			return err
		}
		if err := b.register(feed.Name, p); err != nil {
			return err
		}
	}
	return nil
}

// local opens the bundled-text store and imports any bundles waiting in the
// bundle directory.
func (b *builder) local() error {
	dbPath, err := b.paths.DBPath(b.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("%w: database path: %w", provider.ErrConfiguration, err)
	}
	p, err := local.Open(dbPath, b.cfg.Database.Timeout)
	if err != nil {
		return err
	}
	if err := b.register(local.Name, p); err != nil {
		_ = p.Close()
		return err
	}

	dir, err := b.paths.BundleDir(b.cfg.Database.BundleDir)
	if err != nil {
		debuglog.Warnf("bundle directory: %v", err)
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil
	}
	ids, err := p.ImportDir(dir)
	if err != nil {
		debuglog.Warnf("importing bundles from %s: %v", dir, err)
		return nil
	}
	if len(ids) > 0 {
		debuglog.Infof("imported %d bundles from %s", len(ids), dir)
	}
	return nil
}

func (b *builder) endpoint(name, rawURL string) (string, error) {
	u, err := b.urls.ValidateAndNormalize(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: provider %q: %w", provider.ErrConfiguration, name, err)
	}
	return u, nil
}

func (b *builder) register(name string, p provider.Provider) error {
	if err := b.registry.Register(name, p); err != nil {
		return err
	}
	debuglog.WithFields(map[string]any{"provider": name}).Debugf("provider registered")
	return nil
}

func (b *builder) closeAll() {
	var errs []error
	for _, p := range b.registry.List() {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	if err := errors.Join(errs...); err != nil {
		debuglog.Warnf("closing providers: %v", err)
	}
}
