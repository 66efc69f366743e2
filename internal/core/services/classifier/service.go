package classifier

import (
	"github.com/alejandroruanova/dupflatten/internal/core/domain"
)

// Service implements the Classifier interface. It holds no state besides
// its configuration and is safe for concurrent use.
type Service struct {
	config Config
}

// NewService creates a new classification service
func NewService(config Config) *Service {
	if config.IdenticalPercentage <= 0 {
		config.IdenticalPercentage = DefaultConfig().IdenticalPercentage
	}
	if config.Policy == "" {
		config.Policy = PolicyFirst
	}

	return &Service{config: config}
}

// Classify derives the duplicate decision for one group.
//
// A group is fully identical when it has at least one match and every match
// reaches IdenticalPercentage. In a fully identical group the original (by
// policy, the first file) is flagged as not a duplicate and every other
// file as a duplicate. In any other group, including one without matches,
// every file is flagged as a duplicate.
func (s *Service) Classify(rec *domain.GroupRecord, groupID int64) *domain.ClassifiedGroup {
	group := &domain.ClassifiedGroup{
		GroupID:        groupID,
		Files:          make([]domain.ClassifiedFile, len(rec.Files)),
		Matches:        rec.Matches,
		FullyIdentical: IsFullyIdentical(rec.Matches, s.config.IdenticalPercentage),
		Counts:         Count(rec),
	}

	original := -1
	if group.FullyIdentical && len(rec.Files) > 0 {
		// PolicyFirst is the only policy
		original = 0
	}

	for i, f := range rec.Files {
		group.Files[i] = domain.ClassifiedFile{
			FileEntry: domain.FileEntry{
				Position: i,
				Path:     f.Path,
				Marked:   f.Marked,
			},
			DuplicateFlag: i != original,
		}
	}

	return group
}

// GetConfig returns the current configuration
func (s *Service) GetConfig() Config {
	return s.config
}

// IsFullyIdentical reports whether matches is non-empty and every
// percentage lies between threshold and 100. Values above 100 are never
// identical.
func IsFullyIdentical(matches []domain.MatchEntry, threshold float64) bool {
	if len(matches) == 0 {
		return false
	}
	for _, m := range matches {
		if m.Percentage < threshold || m.Percentage > 100 {
			return false
		}
	}
	return true
}

// Count computes the aggregate counts of a group
func Count(rec *domain.GroupRecord) domain.GroupCounts {
	counts := domain.GroupCounts{
		TotalFiles: len(rec.Files),
		MatchCount: len(rec.Matches),
	}
	for _, f := range rec.Files {
		switch f.Marked {
		case "y":
			counts.MarkedYes++
		case "n":
			counts.MarkedNo++
		}
	}
	return counts
}
