package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
)

func pair(percentage float64) *domain.GroupRecord {
	return &domain.GroupRecord{
		Files: []domain.FileEntry{
			{Position: 0, Path: "a.jpg"},
			{Position: 1, Path: "b.jpg"},
		},
		Matches: []domain.MatchEntry{{First: 0, Second: 1, Percentage: percentage}},
	}
}

func flags(g *domain.ClassifiedGroup) []bool {
	out := make([]bool, len(g.Files))
	for i, f := range g.Files {
		out[i] = f.DuplicateFlag
	}
	return out
}

func TestService_Classify_FullyIdenticalPair(t *testing.T) {
	service := NewService(DefaultConfig())

	g := service.Classify(pair(100), 1)

	assert.Equal(t, int64(1), g.GroupID)
	assert.True(t, g.FullyIdentical)
	assert.Equal(t, []bool{false, true}, flags(g))
	assert.Equal(t, 0, g.Files[0].Position)
	assert.Equal(t, 1, g.Files[1].Position)
	assert.Equal(t, 1, g.OriginalCount())
}

func TestService_Classify_PartialPair(t *testing.T) {
	service := NewService(DefaultConfig())

	g := service.Classify(pair(87.5), 4)

	assert.Equal(t, int64(4), g.GroupID)
	assert.False(t, g.FullyIdentical)
	assert.Equal(t, []bool{true, true}, flags(g))
	assert.Equal(t, 0, g.OriginalCount())
}

func TestService_Classify_EdgeCases(t *testing.T) {
	service := NewService(DefaultConfig())

	tests := []struct {
		name      string
		rec       *domain.GroupRecord
		identical bool
		want      []bool
	}{
		{
			name: "no matches is partial",
			rec: &domain.GroupRecord{Files: []domain.FileEntry{
				{Position: 0, Path: "a"}, {Position: 1, Path: "b"},
			}},
			identical: false,
			want:      []bool{true, true},
		},
		{
			name:      "empty group",
			rec:       &domain.GroupRecord{},
			identical: false,
			want:      []bool{},
		},
		{
			name: "identical matches but no files",
			rec: &domain.GroupRecord{
				Matches: []domain.MatchEntry{{First: 0, Second: 1, Percentage: 100}},
			},
			identical: true,
			want:      []bool{},
		},
		{
			name: "single file with identical self match",
			rec: &domain.GroupRecord{
				Files:   []domain.FileEntry{{Position: 0, Path: "only"}},
				Matches: []domain.MatchEntry{{First: 0, Second: 0, Percentage: 100}},
			},
			identical: true,
			want:      []bool{false},
		},
		{
			name: "one weak match spoils the group",
			rec: &domain.GroupRecord{
				Files: []domain.FileEntry{
					{Position: 0, Path: "a"}, {Position: 1, Path: "b"}, {Position: 2, Path: "c"},
				},
				Matches: []domain.MatchEntry{
					{First: 0, Second: 1, Percentage: 100},
					{First: 1, Second: 2, Percentage: 99.99},
				},
			},
			identical: false,
			want:      []bool{true, true, true},
		},
		{
			name: "percentage above 100 is not identical",
			rec: &domain.GroupRecord{
				Files:   []domain.FileEntry{{Position: 0, Path: "a"}, {Position: 1, Path: "b"}},
				Matches: []domain.MatchEntry{{First: 0, Second: 1, Percentage: 150}},
			},
			identical: false,
			want:      []bool{true, true},
		},
		{
			name: "percentage just above 100 is not identical",
			rec: &domain.GroupRecord{
				Files:   []domain.FileEntry{{Position: 0, Path: "a"}, {Position: 1, Path: "b"}},
				Matches: []domain.MatchEntry{{First: 0, Second: 1, Percentage: 100.5}},
			},
			identical: false,
			want:      []bool{true, true},
		},
		{
			name: "three identical files",
			rec: &domain.GroupRecord{
				Files: []domain.FileEntry{
					{Position: 0, Path: "a"}, {Position: 1, Path: "b"}, {Position: 2, Path: "c"},
				},
				Matches: []domain.MatchEntry{
					{First: 0, Second: 1, Percentage: 100},
					{First: 0, Second: 2, Percentage: 100},
				},
			},
			identical: true,
			want:      []bool{false, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := service.Classify(tt.rec, 1)

			assert.Equal(t, tt.identical, g.FullyIdentical)
			assert.Equal(t, tt.want, flags(g))
			assert.LessOrEqual(t, g.OriginalCount(), 1)
		})
	}
}

func TestService_Classify_PositionsAreOrdinal(t *testing.T) {
	service := NewService(DefaultConfig())

	// positions from the source are ignored in favour of list order
	rec := &domain.GroupRecord{
		Files: []domain.FileEntry{
			{Position: 9, Path: "a"},
			{Position: 3, Path: "b"},
		},
	}
	g := service.Classify(rec, 2)

	assert.Equal(t, 0, g.Files[0].Position)
	assert.Equal(t, 1, g.Files[1].Position)
	assert.Equal(t, "b", g.Files[1].Path)
}

func TestService_Classify_Deterministic(t *testing.T) {
	service := NewService(DefaultConfig())
	rec := &domain.GroupRecord{
		Files: []domain.FileEntry{
			{Position: 0, Path: "a", Marked: "y"},
			{Position: 1, Path: "b", Marked: "n"},
			{Position: 2, Path: "c"},
		},
		Matches: []domain.MatchEntry{
			{First: 0, Second: 1, Percentage: 100},
			{First: 1, Second: 2, Percentage: 100},
		},
	}

	first := service.Classify(rec, 5)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, service.Classify(rec, 5))
	}
}

func TestService_Classify_Counts(t *testing.T) {
	service := NewService(DefaultConfig())
	rec := &domain.GroupRecord{
		Files: []domain.FileEntry{
			{Path: "a", Marked: "y"},
			{Path: "b", Marked: "n"},
			{Path: "c", Marked: "n"},
			{Path: "d", Marked: "maybe"},
		},
		Matches: []domain.MatchEntry{{First: 0, Second: 1, Percentage: 50}},
	}

	g := service.Classify(rec, 1)

	assert.Equal(t, domain.GroupCounts{TotalFiles: 4, MarkedYes: 1, MarkedNo: 2, MatchCount: 1}, g.Counts)
}

func TestService_CustomThreshold(t *testing.T) {
	service := NewService(Config{IdenticalPercentage: 95})

	assert.Equal(t, PolicyFirst, service.GetConfig().Policy)
	assert.True(t, service.Classify(pair(96), 1).FullyIdentical)
	assert.False(t, service.Classify(pair(94.9), 1).FullyIdentical)
	assert.False(t, service.Classify(pair(101), 1).FullyIdentical)
}

func TestNewService_FillsDefaults(t *testing.T) {
	service := NewService(Config{})

	assert.Equal(t, DefaultConfig(), service.GetConfig())
}

func TestSequence(t *testing.T) {
	seq := NewSequence()
	require.Equal(t, int64(0), seq.Last())

	for want := int64(1); want <= 5; want++ {
		assert.Equal(t, want, seq.Next())
	}
	assert.Equal(t, int64(5), seq.Last())

	// independent sequences do not share state
	assert.Equal(t, int64(1), NewSequence().Next())
}
