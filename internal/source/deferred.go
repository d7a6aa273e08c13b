package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	loaderrors "pitloader/internal/errors"
	"pitloader/pkg/contracts/domain"
)

// Backend executes a resolved statement against external data
type Backend interface {
	Fetch(ctx context.Context, stmt Statement) (*Table, error)
}

// Statement is a deferred query after binding: which table to read, which
// columns to return and which assets and knowledge dates to keep.
type Statement struct {
	Table           string
	Columns         []string
	AssetColumn     string
	Assets          []domain.AssetID
	KnowledgeColumn string
	Until           time.Time

	// OrderColumn fixes the order rows are returned in, which decides ties
	// between records known on the same day. Backends fall back to the
	// physical row order when it is empty.
	OrderColumn string
}

// Query is an unresolved description of where events live. A query with a
// Backend is bound; otherwise Resource (or Table) is looked up in a Scope.
type Query struct {
	Resource    string
	Table       string
	OrderColumn string
	Backend     Backend
}

// Bound reports whether the query carries its own backend
func (q Query) Bound() bool { return q.Backend != nil }

func (q Query) resourceName() string {
	if q.Resource != "" {
		return q.Resource
	}
	return q.Table
}

// Scope maps resource names to backends
type Scope map[string]Backend

var (
	defaultScope   = Scope{}
	defaultScopeMu sync.RWMutex
)

// RegisterResource adds a backend to the implicit scope used by deferred
// sources that carry no explicit scope.
func RegisterResource(name string, b Backend) {
	defaultScopeMu.Lock()
	defer defaultScopeMu.Unlock()
	defaultScope[name] = b
}

// UnregisterResource removes a backend from the implicit scope
func UnregisterResource(name string) {
	defaultScopeMu.Lock()
	defer defaultScopeMu.Unlock()
	delete(defaultScope, name)
}

func lookupDefault(name string) (Backend, bool) {
	defaultScopeMu.RLock()
	defer defaultScopeMu.RUnlock()
	b, ok := defaultScope[name]
	return b, ok
}

// DeferredSource resolves a Query once per load and normalizes the result
// exactly like an eager table.
type DeferredSource struct {
	Query Query
	Scope Scope
}

// NewDeferredSource creates a deferred source. A nil scope means the
// implicit scope populated through RegisterResource.
func NewDeferredSource(q Query, scope Scope) *DeferredSource {
	return &DeferredSource{Query: q, Scope: scope}
}

// Bind returns the backend the query will run against
func (s *DeferredSource) Bind() (Backend, error) {
	if s.Query.Bound() {
		return s.Query.Backend, nil
	}

	name := s.Query.resourceName()
	if name == "" {
		return nil, loaderrors.NewSourceResolutionError("query names no resource or table", nil)
	}

	if s.Scope != nil {
		if b, ok := s.Scope[name]; ok && b != nil {
			return b, nil
		}
		return nil, loaderrors.NewSourceResolutionError(
			fmt.Sprintf("resource %q is not in scope (have %s)", name, strings.Join(s.Scope.names(), ", ")), nil)
	}

	if b, ok := lookupDefault(name); ok && b != nil {
		return b, nil
	}
	return nil, loaderrors.NewSourceResolutionError(fmt.Sprintf("resource %q is not registered", name), nil)
}

// Resolve implements Source
func (s *DeferredSource) Resolve(ctx context.Context, req Request) (*Batch, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	backend, err := s.Bind()
	if err != nil {
		return nil, err
	}

	table := s.Query.Table
	if table == "" {
		table = s.Query.resourceName()
	}

	stmt := Statement{
		Table:           table,
		Columns:         req.Schema.Columns(),
		AssetColumn:     req.Schema.AssetColumn,
		Assets:          uniqueAssets(req.Assets),
		KnowledgeColumn: req.Schema.KnowledgeColumn,
		Until:           domain.TruncateDay(req.Until),
		OrderColumn:     s.Query.OrderColumn,
	}

	rows, err := backend.Fetch(ctx, stmt)
	if err != nil {
		if loaderrors.GetErrorType(err) != "" {
			return nil, err
		}
		return nil, loaderrors.NewSourceResolutionError(fmt.Sprintf("fetch %q", table), err)
	}

	n := newNormalizer(req)
	if err := n.add(rows, nil); err != nil {
		return nil, err
	}
	return n.batch, nil
}

func (s Scope) names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func uniqueAssets(assets []domain.AssetID) []domain.AssetID {
	seen := make(map[domain.AssetID]bool, len(assets))
	out := make([]domain.AssetID, 0, len(assets))
	for _, a := range assets {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// missingColumns returns the required columns absent from have
func missingColumns(required, have []string) []string {
	present := make(map[string]bool, len(have))
	for _, c := range have {
		present[c] = true
	}
	var missing []string
	for _, c := range required {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

func schemaErrorFor(missing []string) error {
	return loaderrors.NewSchemaError(missing[0], "required column is missing").
		WithContext("missing", missing)
}
