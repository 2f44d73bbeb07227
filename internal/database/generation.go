package database

import (
	"github.com/playtrack/playtrack/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// Generation summarizes the rows of a table. Inserting, deleting or
// updating a row changes it, so two readings taken before and after a write
// made by another process differ.
type Generation struct {
	RowCount   int64
	MaxID      uint
	LastUpdate string
}

func generation(db *gorm.DB, model interface{}, op string) (Generation, error) {
	var g Generation
	err := db.Model(model).
		Select("COUNT(*) AS row_count, COALESCE(MAX(id), 0) AS max_id, COALESCE(CAST(MAX(updated_at) AS TEXT), '') AS last_update").
		Scan(&g).Error
	if err != nil {
		return Generation{}, classify(op, errors.Wrap(err, "failed to read table generation"))
	}
	return g, nil
}

// UserAppGeneration returns the current generation of the user_app table.
func (r *Repository) UserAppGeneration() (Generation, error) {
	return generation(r.db, &models.UserApp{}, "user app generation")
}

// Generation returns the current generation of the settings table.
func (s *Settings) Generation() (Generation, error) {
	return generation(s.db, &models.Setting{}, "settings generation")
}
