package domain

// GroupFile is one member file of a duplicate group as stored in the
// flattened layout. group_id and file_id are assigned by the flattener,
// never derived from content.
type GroupFile struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID       int64  `gorm:"not null;index:idx_all_groups_group_id,priority:1;index:idx_all_groups_original,priority:2" json:"group_id"`
	FileID        int    `gorm:"not null;index:idx_all_groups_group_id,priority:2" json:"file_id"`
	Filepath      string `gorm:"type:text" json:"filepath"`
	Filename      string `gorm:"type:text" json:"filename"`
	DuplicateFlag bool   `gorm:"not null;index:idx_all_groups_original,priority:1" json:"duplicate_flag"`
}

// TableName specifies the table name for GORM
func (GroupFile) TableName() string {
	return "all_groups"
}

// Status is the label shown next to a file when a group is displayed.
func (f GroupFile) Status() string {
	if f.DuplicateFlag {
		return "Duplicate"
	}
	return "Original"
}

// Match is a pairwise similarity between two files of the same group.
// first and second are file_id values within group_id; the relation is
// not enforced by the database.
type Match struct {
	ID         uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID    int64   `gorm:"not null;index:idx_matches_group_id" json:"group_id"`
	First      int     `gorm:"not null" json:"first"`
	Second     int     `gorm:"not null" json:"second"`
	Percentage float64 `gorm:"not null" json:"percentage"`
}

// TableName specifies the table name for GORM
func (Match) TableName() string {
	return "matches"
}
