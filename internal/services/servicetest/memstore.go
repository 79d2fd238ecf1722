// Package servicetest provides an in-memory implementation of the service store
// interfaces. It enforces the same unique and foreign key constraints as the
// PostgreSQL schema and reports violations as *pq.Error values, so code that
// classifies violations behaves exactly as it does against a real database.
package servicetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/runledger/runledger/internal/db/models"
	"github.com/runledger/runledger/internal/db/repositories"
)

type runKey struct{ projectID, runID string }

// Store is a goroutine-safe in-memory database shared by the per-entity views
// returned from Organizations, Projects, Tokens, and Runs.
type Store struct {
	mu       sync.Mutex
	orgs     map[string]*models.Organization
	projects map[string]*models.Project
	tokens   map[string]*models.APIToken // by hash
	runs     map[runKey]*models.TestRun

	// Err, when set, is returned by every operation. Used to simulate an outage.
	Err error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		orgs:     make(map[string]*models.Organization),
		projects: make(map[string]*models.Project),
		tokens:   make(map[string]*models.APIToken),
		runs:     make(map[runKey]*models.TestRun),
	}
}

func violation(code, constraint string) error {
	return &pq.Error{Code: pq.ErrorCode(code), Constraint: constraint}
}

func (s *Store) fail() error {
	return s.Err
}

// Organizations returns the organization view.
func (s *Store) Organizations() *Organizations { return &Organizations{s} }

// Projects returns the project view.
func (s *Store) Projects() *Projects { return &Projects{s} }

// Tokens returns the token view.
func (s *Store) Tokens() *Tokens { return &Tokens{s} }

// Runs returns the test run view.
func (s *Store) Runs() *Runs { return &Runs{s} }

// RunCount returns the number of stored runs for a project.
func (s *Store) RunCount(projectID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.runs {
		if k.projectID == projectID {
			n++
		}
	}
	return n
}

// TokenHashes returns every stored token hash.
func (s *Store) TokenHashes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tokens))
	for h := range s.tokens {
		out = append(out, h)
	}
	return out
}

// Organizations is the organizations table.
type Organizations struct{ s *Store }

func (o *Organizations) Create(_ context.Context, org *models.Organization) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if err := o.s.fail(); err != nil {
		return err
	}
	for _, existing := range o.s.orgs {
		if existing.Name == org.Name {
			return violation(pgerrcode.UniqueViolation, repositories.ConstraintOrganizationName)
		}
	}
	org.ID = uuid.NewString()
	org.CreatedAt = time.Now().UTC()
	cp := *org
	o.s.orgs[org.ID] = &cp
	return nil
}

func (o *Organizations) GetByID(_ context.Context, id string) (*models.Organization, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if err := o.s.fail(); err != nil {
		return nil, err
	}
	if org, ok := o.s.orgs[id]; ok {
		cp := *org
		return &cp, nil
	}
	return nil, nil
}

// Projects is the projects table.
type Projects struct{ s *Store }

func (p *Projects) Create(_ context.Context, project *models.Project) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.fail(); err != nil {
		return err
	}
	if _, ok := p.s.orgs[project.OrganizationID]; !ok {
		return violation(pgerrcode.ForeignKeyViolation, repositories.ConstraintProjectOrgFK)
	}
	for _, existing := range p.s.projects {
		if existing.OrganizationID == project.OrganizationID && existing.Name == project.Name {
			return violation(pgerrcode.UniqueViolation, repositories.ConstraintProjectName)
		}
	}
	project.ID = uuid.NewString()
	project.CreatedAt = time.Now().UTC()
	cp := *project
	p.s.projects[project.ID] = &cp
	return nil
}

func (p *Projects) GetByID(_ context.Context, id string) (*models.Project, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.fail(); err != nil {
		return nil, err
	}
	if project, ok := p.s.projects[id]; ok {
		cp := *project
		return &cp, nil
	}
	return nil, nil
}

func (p *Projects) ListByOrganization(_ context.Context, orgID string) ([]*models.Project, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.fail(); err != nil {
		return nil, err
	}
	var out []*models.Project
	for _, project := range p.s.projects {
		if project.OrganizationID == orgID {
			cp := *project
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Tokens is the api_tokens table.
type Tokens struct{ s *Store }

func (t *Tokens) Create(_ context.Context, token *models.APIToken) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.fail(); err != nil {
		return err
	}
	if _, ok := t.s.projects[token.ProjectID]; !ok {
		return violation(pgerrcode.ForeignKeyViolation, repositories.ConstraintTokenProjectFK)
	}
	if _, ok := t.s.tokens[token.TokenHash]; ok {
		return violation(pgerrcode.UniqueViolation, repositories.ConstraintTokenHash)
	}
	token.ID = uuid.NewString()
	token.CreatedAt = time.Now().UTC()
	cp := *token
	t.s.tokens[token.TokenHash] = &cp
	return nil
}

func (t *Tokens) GetByHash(_ context.Context, hash string) (*models.APIToken, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.fail(); err != nil {
		return nil, err
	}
	if token, ok := t.s.tokens[hash]; ok {
		cp := *token
		return &cp, nil
	}
	return nil, nil
}

// Runs is the test_runs table.
type Runs struct{ s *Store }

func (r *Runs) Insert(_ context.Context, run *models.TestRun) (repositories.WriteOutcome, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(); err != nil {
		return repositories.WriteFailed, err
	}
	if _, ok := r.s.projects[run.ProjectID]; !ok {
		return repositories.WriteFailed, violation(pgerrcode.ForeignKeyViolation, repositories.ConstraintTestRunProjectFK)
	}
	key := runKey{run.ProjectID, run.RunID}
	if _, ok := r.s.runs[key]; ok {
		return repositories.WriteDuplicate, nil
	}
	run.ID = uuid.NewString()
	run.CreatedAt = time.Now().UTC()
	cp := *run
	r.s.runs[key] = &cp
	return repositories.WriteCreated, nil
}

func (r *Runs) GetByProjectAndRunID(_ context.Context, projectID, runID string) (*models.TestRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(); err != nil {
		return nil, err
	}
	if run, ok := r.s.runs[runKey{projectID, runID}]; ok {
		cp := *run
		return &cp, nil
	}
	return nil, nil
}
