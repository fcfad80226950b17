package store

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ObservationKey identifies the (file, location, architecture) a new
// Observation belongs to.
type ObservationKey struct {
	FileID         uint
	LocationID     uint
	ArchitectureID *uint
}

func (k ObservationKey) rangeQuery(tx *gorm.DB) *gorm.DB {
	q := tx.Where("file_id = ? AND location_id = ?", k.FileID, k.LocationID)
	if k.ArchitectureID == nil {
		return q.Where("architecture_id IS NULL")
	}
	return q.Where("architecture_id = ?", *k.ArchitectureID)
}

// RecordObservation inserts an Observation for (key, timestampID) within
// archiveID and runs the coalescer. It must run inside the ingestion
// pipeline's per-(archive, timestamp, suite, component, arch) transaction.
//
// Idempotent: inserting the same observation twice is a no-op the second
// time, because the Observation insert itself is a no-op (unique index)
// and the coalescer is skipped when nothing new was recorded.
func RecordObservation(tx *gorm.DB, archiveID uint, key ObservationKey, timestampID uint) error {
	obs := Observation{
		FileID:         key.FileID,
		LocationID:     key.LocationID,
		ArchitectureID: key.ArchitectureID,
		TimestampID:    timestampID,
	}
	cols := []clause.Column{{Name: "file_id"}, {Name: "location_id"}, {Name: "architecture_id"}, {Name: "timestamp_id"}}
	if key.ArchitectureID == nil {
		// A NULL architecture_id never conflicts in the unique index, so
		// an existing row has to be looked up explicitly.
		var n int64
		if err := key.rangeQuery(tx.Model(&Observation{})).Where("timestamp_id = ?", timestampID).Count(&n).Error; err != nil {
			return fmt.Errorf("store: check observation: %w", err)
		}
		if n > 0 {
			return nil
		}
	}
	res := tx.Clauses(clause.OnConflict{Columns: cols, DoNothing: true}).Create(&obs)
	if res.Error != nil {
		return fmt.Errorf("store: insert observation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Already recorded; the existing TimestampRange already covers
		// this timestamp.
		return nil
	}
	return coalesce(tx, archiveID, key, timestampID)
}

// adjacentTimestampIDs returns the IDs of the archive's ingested
// timestamps immediately before and after value, in lexicographic
// (== chronological) order, considering every ingested timestamp for the
// archive regardless of whether this (file, location, arch) was observed
// there.
func adjacentTimestampIDs(tx *gorm.DB, archiveID uint, value string) (prev, next *uint, err error) {
	var prevTS Timestamp
	err = tx.Where("archive_id = ? AND value < ?", archiveID, value).
		Order("value DESC").Limit(1).First(&prevTS).Error
	switch {
	case err == nil:
		prev = &prevTS.ID
	case err == gorm.ErrRecordNotFound:
		err = nil
	default:
		return nil, nil, fmt.Errorf("store: find previous timestamp: %w", err)
	}

	var nextTS Timestamp
	err = tx.Where("archive_id = ? AND value > ?", archiveID, value).
		Order("value ASC").Limit(1).First(&nextTS).Error
	switch {
	case err == nil:
		next = &nextTS.ID
	case err == gorm.ErrRecordNotFound:
		err = nil
	default:
		return nil, nil, fmt.Errorf("store: find next timestamp: %w", err)
	}
	return prev, next, nil
}

func coalesce(tx *gorm.DB, archiveID uint, key ObservationKey, timestampID uint) error {
	var ts Timestamp
	if err := tx.First(&ts, timestampID).Error; err != nil {
		return fmt.Errorf("store: load timestamp: %w", err)
	}

	prevID, nextID, err := adjacentTimestampIDs(tx, archiveID, ts.Value)
	if err != nil {
		return err
	}

	var left, right TimestampRange
	haveLeft, haveRight := false, false

	if prevID != nil {
		err := key.rangeQuery(tx).Where("end_id = ?", *prevID).First(&left).Error
		if err == nil {
			haveLeft = true
		} else if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("store: find left range: %w", err)
		}
	}
	if nextID != nil {
		err := key.rangeQuery(tx).Where("begin_id = ?", *nextID).First(&right).Error
		if err == nil {
			haveRight = true
		} else if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("store: find right range: %w", err)
		}
	}

	switch {
	case haveLeft && haveRight:
		// Merge both into [left.Begin, right.End] and delete the other.
		left.EndID = right.EndID
		if err := tx.Save(&left).Error; err != nil {
			return fmt.Errorf("store: merge ranges: %w", err)
		}
		if err := tx.Delete(&TimestampRange{}, right.ID).Error; err != nil {
			return fmt.Errorf("store: delete merged range: %w", err)
		}
	case haveLeft:
		left.EndID = timestampID
		if err := tx.Save(&left).Error; err != nil {
			return fmt.Errorf("store: extend left range: %w", err)
		}
	case haveRight:
		right.BeginID = timestampID
		if err := tx.Save(&right).Error; err != nil {
			return fmt.Errorf("store: extend right range: %w", err)
		}
	default:
		newRange := TimestampRange{
			FileID:         key.FileID,
			LocationID:     key.LocationID,
			ArchitectureID: key.ArchitectureID,
			BeginID:        timestampID,
			EndID:          timestampID,
		}
		if err := tx.Create(&newRange).Error; err != nil {
			return fmt.Errorf("store: insert singleton range: %w", err)
		}
	}
	return nil
}
