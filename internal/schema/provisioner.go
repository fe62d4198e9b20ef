// ABOUTME: Schema provisioning for store collections
// ABOUTME: Creates a collection from its local JSON definition unless it already exists

package schema

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/nainya/memsetup/internal/collection"
	"github.com/nainya/memsetup/internal/logger"
)

// ErrSchemaFileNotFound indicates the local definition for a collection is missing
var ErrSchemaFileNotFound = errors.New("schema: definition file not found")

// Store is the subset of the store client the provisioner needs
type Store interface {
	ListClasses(ctx context.Context) ([]string, error)
	CreateSchema(ctx context.Context, definition []byte) (int, error)
}

// Result describes what EnsureSchema did
type Result struct {
	Collection string
	File       string
	Existed    bool
	Created    bool
	StatusCode int
}

// Provisioner creates collection schemas from files in Dir
type Provisioner struct {
	store Store
	dir   string
	log   *logger.Logger
}

// NewProvisioner creates a provisioner reading definitions from dir
func NewProvisioner(store Store, dir string, log *logger.Logger) *Provisioner {
	if log == nil {
		log = logger.Nop()
	}
	return &Provisioner{store: store, dir: dir, log: log}
}

// EnsureSchema creates the collection named by arg unless the store already
// lists it. Calling it twice creates the schema at most once.
func (p *Provisioner) EnsureSchema(ctx context.Context, arg string) (Result, error) {
	name, err := collection.Normalize(arg)
	if err != nil {
		return Result{}, err
	}

	path := filepath.Join(p.dir, collection.SchemaFile(name))
	res := Result{Collection: name, File: path}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("%w: %s", ErrSchemaFileNotFound, path)
		}
		return res, fmt.Errorf("stat schema file: %w", err)
	}

	exists, err := p.exists(ctx, name)
	if err != nil {
		// A failed listing counts as "absent"; the create call decides.
		p.log.Warn().Err(err).Msg("could not check existing schema")
	}
	if exists {
		res.Existed = true
		p.log.Info().Str("collection", name).Msg("schema already exists, skipping")
		return res, nil
	}

	definition, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read schema file: %w", err)
	}

	status, err := p.store.CreateSchema(ctx, definition)
	res.StatusCode = status
	if err != nil {
		return res, fmt.Errorf("create schema %q: %w", name, err)
	}

	res.Created = true
	p.log.Info().Str("collection", name).Int("status", status).Msg("schema created")
	return res, nil
}

func (p *Provisioner) exists(ctx context.Context, name string) (bool, error) {
	classes, err := p.store.ListClasses(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(classes, name), nil
}

// ListFiles returns the schema definition file names available in dir,
// sorted. Sample definition files are not included.
func ListFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+collection.SchemaExt))
	if err != nil {
		return nil, err
	}

	var names []string
	for _, m := range matches {
		base := filepath.Base(m)
		if strings.HasSuffix(strings.TrimSuffix(base, collection.SchemaExt), "_samples") {
			continue
		}
		names = append(names, base)
	}
	sort.Strings(names)
	return names, nil
}
