package classifier

import "github.com/alejandroruanova/dupflatten/internal/core/domain"

// OriginalPolicy decides which member of a fully identical group is kept
// as the original
type OriginalPolicy string

const (
	// PolicyFirst keeps the file listed first in the group
	PolicyFirst OriginalPolicy = "first"
)

// Config for the classifier
type Config struct {
	// IdenticalPercentage is the similarity every match must reach for the
	// group to count as fully identical
	IdenticalPercentage float64        `json:"identical_percentage"`
	Policy              OriginalPolicy `json:"policy"`
}

// DefaultConfig returns default classification configuration
func DefaultConfig() Config {
	return Config{
		IdenticalPercentage: 100,
		Policy:              PolicyFirst,
	}
}

// Classifier defines the interface for classification operations
type Classifier interface {
	// Classify assigns groupID and a duplicate flag to every file of rec
	Classify(rec *domain.GroupRecord, groupID int64) *domain.ClassifiedGroup

	// GetConfig returns the current configuration
	GetConfig() Config
}

// Sequence hands out group ids 1, 2, 3, ... in call order. Each run owns
// its own Sequence.
type Sequence struct {
	last int64
}

// NewSequence returns a sequence whose first id is 1
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next group id
func (s *Sequence) Next() int64 {
	s.last++
	return s.last
}

// Last returns the most recently issued id, 0 if none
func (s *Sequence) Last() int64 {
	return s.last
}
