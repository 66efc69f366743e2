package domain

import "strings"

// FileEntry is one <file> element of a group, in document order.
type FileEntry struct {
	Position int    `json:"position"`
	Path     string `json:"path"`
	Marked   string `json:"marked,omitempty"`
}

// MatchEntry is one <match> element: a similarity between two member files
// referenced by position.
type MatchEntry struct {
	First      int     `json:"first"`
	Second     int     `json:"second"`
	Percentage float64 `json:"percentage"`
}

// GroupRecord is a single group as read from the report. It lives only
// until it has been classified.
type GroupRecord struct {
	Files   []FileEntry  `json:"files"`
	Matches []MatchEntry `json:"matches"`
}

// GroupCounts are the aggregate counts derived for a group.
type GroupCounts struct {
	TotalFiles int `json:"total_files"`
	MarkedYes  int `json:"marked_y"`
	MarkedNo   int `json:"marked_n"`
	MatchCount int `json:"match_count"`
}

// Add accumulates other into c.
func (c *GroupCounts) Add(other GroupCounts) {
	c.TotalFiles += other.TotalFiles
	c.MarkedYes += other.MarkedYes
	c.MarkedNo += other.MarkedNo
	c.MatchCount += other.MatchCount
}

// ClassifiedFile is a member file with its duplicate decision.
type ClassifiedFile struct {
	FileEntry
	DuplicateFlag bool `json:"duplicate_flag"`
}

// ClassifiedGroup is a GroupRecord with an assigned group id and a
// duplicate flag per file.
type ClassifiedGroup struct {
	GroupID        int64            `json:"group_id"`
	Files          []ClassifiedFile `json:"files"`
	Matches        []MatchEntry     `json:"matches"`
	FullyIdentical bool             `json:"fully_identical"`
	Counts         GroupCounts      `json:"counts"`
}

// OriginalCount returns how many files are flagged as the original.
// It is 0 or 1 for any group produced by the classifier.
func (g *ClassifiedGroup) OriginalCount() int {
	n := 0
	for _, f := range g.Files {
		if !f.DuplicateFlag {
			n++
		}
	}
	return n
}

// FileRows converts the group into all_groups rows.
func (g *ClassifiedGroup) FileRows() []GroupFile {
	rows := make([]GroupFile, 0, len(g.Files))
	for _, f := range g.Files {
		rows = append(rows, GroupFile{
			GroupID:       g.GroupID,
			FileID:        f.Position,
			Filepath:      f.Path,
			Filename:      FileNameFromPath(f.Path),
			DuplicateFlag: f.DuplicateFlag,
		})
	}
	return rows
}

// MatchRows converts the group into matches rows.
func (g *ClassifiedGroup) MatchRows() []Match {
	rows := make([]Match, 0, len(g.Matches))
	for _, m := range g.Matches {
		rows = append(rows, Match{
			GroupID:    g.GroupID,
			First:      m.First,
			Second:     m.Second,
			Percentage: m.Percentage,
		})
	}
	return rows
}

// FileNameFromPath returns the last path component. Reports are produced
// on Windows as often as not, so both separators count.
func FileNameFromPath(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
