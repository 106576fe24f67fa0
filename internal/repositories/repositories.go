// package repositories provides persistence layer implementations for all model types.
//
// Each repository implements models.Repository[T] for a specific entity type.
package repositories

import (
	"database/sql"
	"fmt"
)

// requireRows reports err when an update or delete touched no rows.
func requireRows(result sql.Result, err error) error {
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("failed to get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return err
	}
	return nil
}
