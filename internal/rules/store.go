// Package rules implements phase-1 classification: ordered pattern-rule
// files resolved per study with first-match-wins semantics.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	gocache "github.com/patrickmn/go-cache"

	"github.com/phenoclass/conceptor/internal/model"
)

// DefaultRuleFile is the shared fallback rule set, consulted for every
// table the study-specific rules miss.
const DefaultRuleFile = "_default"

// Store loads ordered rule files from a directory. Loaded files are
// memoized: the default set is consulted once per study and study files
// once per run.
type Store struct {
	dir   string
	cache *gocache.Cache
}

// NewStore creates a rule store over the given directory.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// StudyRules returns the ordered rule list for a study. A missing file is
// not an error: it returns an empty list.
func (s *Store) StudyRules(studyID string) ([]model.Rule, error) {
	rf, err := s.load(studyID)
	if err != nil {
		return nil, err
	}
	if rf == nil {
		return nil, nil
	}
	return rf.Rules, nil
}

// DefaultRules returns the ordered default rule list, or an empty list if
// no default file exists.
func (s *Store) DefaultRules() ([]model.Rule, error) {
	rf, err := s.load(DefaultRuleFile)
	if err != nil {
		return nil, err
	}
	if rf == nil {
		return nil, nil
	}
	return rf.Rules, nil
}

// load reads and memoizes one rule file. A nil *model.RuleFile with nil
// error means the file does not exist (also memoized).
func (s *Store) load(name string) (*model.RuleFile, error) {
	if cached, found := s.cache.Get(name); found {
		return cached.(*model.RuleFile), nil
	}

	path := filepath.Join(s.dir, name+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.cache.Set(name, (*model.RuleFile)(nil), gocache.NoExpiration)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}

	var rf model.RuleFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}

	// Surface authoring mistakes at load time rather than mid-match
	for i, r := range rf.Rules {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return nil, fmt.Errorf("rule file %s: rule %d pattern %q: %w", path, i, r.Pattern, err)
		}
		if r.MatchField != model.MatchTableName && r.MatchField != model.MatchDescription {
			return nil, fmt.Errorf("rule file %s: rule %d: unknown match field %q", path, i, r.MatchField)
		}
	}

	s.cache.Set(name, &rf, gocache.NoExpiration)
	return &rf, nil
}
