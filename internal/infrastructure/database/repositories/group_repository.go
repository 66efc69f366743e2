package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// DefaultGroupsPerPage is how many groups a page of the viewer shows
const DefaultGroupsPerPage = 3

// GroupView is one group with its members and matches
type GroupView struct {
	GroupID int64              `json:"group_id"`
	Files   []domain.GroupFile `json:"files"`
	Matches []domain.Match     `json:"matches"`
}

// GroupPage is a page of groups that have an original
type GroupPage struct {
	Page        int         `json:"page"`
	PerPage     int         `json:"per_page"`
	TotalGroups int64       `json:"total_groups"`
	TotalPages  int         `json:"total_pages"`
	Groups      []GroupView `json:"groups"`
}

// StoreSummary counts the rows of a flattened store
type StoreSummary struct {
	Files          int64 `json:"files"`
	Matches        int64 `json:"matches"`
	Groups         int64 `json:"groups"`
	OriginalGroups int64 `json:"original_groups"`
	Runs           int64 `json:"runs"`
}

// IsEmpty reports whether no data rows exist
func (s StoreSummary) IsEmpty() bool {
	return s.Files == 0 && s.Matches == 0
}

// GroupRepository answers read queries against a committed store
type GroupRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewGroupRepository creates a new repository instance
func NewGroupRepository(db *gorm.DB, logger *slog.Logger) *GroupRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &GroupRepository{
		db:     db,
		logger: logger,
	}
}

// ListOriginalGroupIDs returns, in ascending order, the ids of groups that
// contain an original. A negative limit returns all of them.
func (r *GroupRepository) ListOriginalGroupIDs(ctx context.Context, offset, limit int) ([]int64, error) {
	var ids []int64

	err := r.db.WithContext(ctx).
		Model(&domain.GroupFile{}).
		Where("duplicate_flag = ?", false).
		Distinct().
		Order("group_id ASC").
		Offset(offset).
		Limit(limit).
		Pluck("group_id", &ids).
		Error

	if err != nil {
		r.logger.Error("failed to list original groups", slog.Any("error", err))
		return nil, apperrors.Storage(err, "database query failed")
	}

	return ids, nil
}

// CountOriginalGroups returns how many groups contain an original
func (r *GroupRepository) CountOriginalGroups(ctx context.Context) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&domain.GroupFile{}).
		Where("duplicate_flag = ?", false).
		Distinct("group_id").
		Count(&count).
		Error

	if err != nil {
		r.logger.Error("failed to count original groups", slog.Any("error", err))
		return 0, apperrors.Storage(err, "database query failed")
	}

	return count, nil
}

// GetGroupFiles returns the members of a group ordered by file_id
func (r *GroupRepository) GetGroupFiles(ctx context.Context, groupID int64) ([]domain.GroupFile, error) {
	var files []domain.GroupFile

	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("file_id ASC").
		Find(&files).
		Error

	if err != nil {
		r.logger.Error("failed to get group files",
			slog.Int64("group_id", groupID),
			slog.Any("error", err))
		return nil, apperrors.Storage(err, "database query failed")
	}

	return files, nil
}

// GetGroupMatches returns the matches of a group in insertion order
func (r *GroupRepository) GetGroupMatches(ctx context.Context, groupID int64) ([]domain.Match, error) {
	var matches []domain.Match

	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("id ASC").
		Find(&matches).
		Error

	if err != nil {
		r.logger.Error("failed to get group matches",
			slog.Int64("group_id", groupID),
			slog.Any("error", err))
		return nil, apperrors.Storage(err, "database query failed")
	}

	return matches, nil
}

// GetGroup returns one group with its files and matches
func (r *GroupRepository) GetGroup(ctx context.Context, groupID int64) (*GroupView, error) {
	files, err := r.GetGroupFiles(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperrors.NotFound(fmt.Sprintf("group %d not found", groupID))
	}

	matches, err := r.GetGroupMatches(ctx, groupID)
	if err != nil {
		return nil, err
	}

	return &GroupView{GroupID: groupID, Files: files, Matches: matches}, nil
}

// Page returns the 1-based page of groups that contain an original
func (r *GroupRepository) Page(ctx context.Context, page, perPage int) (*GroupPage, error) {
	if perPage < 1 {
		perPage = DefaultGroupsPerPage
	}

	total, err := r.CountOriginalGroups(ctx)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	result := &GroupPage{
		Page:        page,
		PerPage:     perPage,
		TotalGroups: total,
		TotalPages:  totalPages,
		Groups:      []GroupView{},
	}

	if total == 0 && page == 1 {
		return result, nil
	}
	if page < 1 || page > totalPages {
		return nil, apperrors.NotFound(fmt.Sprintf("page %d out of range (1-%d)", page, totalPages))
	}

	ids, err := r.ListOriginalGroupIDs(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		view, err := r.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		result.Groups = append(result.Groups, *view)
	}

	return result, nil
}

// PageOfGroup returns the page on which groupID is listed
func (r *GroupRepository) PageOfGroup(ctx context.Context, groupID int64, perPage int) (int, error) {
	if perPage < 1 {
		perPage = DefaultGroupsPerPage
	}

	var exists int64
	err := r.db.WithContext(ctx).
		Model(&domain.GroupFile{}).
		Where("group_id = ? AND duplicate_flag = ?", groupID, false).
		Count(&exists).
		Error
	if err != nil {
		return 0, apperrors.Storage(err, "database query failed")
	}
	if exists == 0 {
		return 0, apperrors.NotFound(fmt.Sprintf("group %d has no original", groupID))
	}

	var before int64
	err = r.db.WithContext(ctx).
		Model(&domain.GroupFile{}).
		Where("duplicate_flag = ? AND group_id < ?", false, groupID).
		Distinct("group_id").
		Count(&before).
		Error
	if err != nil {
		return 0, apperrors.Storage(err, "database query failed")
	}

	return int(before)/perPage + 1, nil
}

// Summary counts the rows of every table
func (r *GroupRepository) Summary(ctx context.Context) (*StoreSummary, error) {
	summary := &StoreSummary{}
	db := r.db.WithContext(ctx)

	if err := db.Model(&domain.GroupFile{}).Count(&summary.Files).Error; err != nil {
		return nil, apperrors.Storage(err, "database query failed")
	}
	if err := db.Model(&domain.Match{}).Count(&summary.Matches).Error; err != nil {
		return nil, apperrors.Storage(err, "database query failed")
	}
	if err := db.Model(&domain.GroupFile{}).Distinct("group_id").Count(&summary.Groups).Error; err != nil {
		return nil, apperrors.Storage(err, "database query failed")
	}
	if err := db.Model(&domain.IngestRun{}).Count(&summary.Runs).Error; err != nil {
		return nil, apperrors.Storage(err, "database query failed")
	}

	originals, err := r.CountOriginalGroups(ctx)
	if err != nil {
		return nil, err
	}
	summary.OriginalGroups = originals

	return summary, nil
}

// EachFile streams every all_groups row in insertion order, in chunks of
// batchSize
func (r *GroupRepository) EachFile(ctx context.Context, batchSize int, fn func([]domain.GroupFile) error) error {
	var batch []domain.GroupFile

	result := r.db.WithContext(ctx).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	if result.Error != nil {
		return apperrors.Storage(result.Error, "failed to read files")
	}
	return nil
}

// EachMatch streams every matches row in insertion order
func (r *GroupRepository) EachMatch(ctx context.Context, batchSize int, fn func([]domain.Match) error) error {
	var batch []domain.Match

	result := r.db.WithContext(ctx).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	if result.Error != nil {
		return apperrors.Storage(result.Error, "failed to read matches")
	}
	return nil
}
