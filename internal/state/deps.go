package state

import (
	"fmt"

	"github.com/gantrylabs/gantry/pkg/models"
)

// AddDependency inserts a directed dependency edge between two typed
// references. Referential and acyclicity checks happen at ingestion;
// the store only enforces kind validity and uniqueness.
func (db *DB) AddDependency(dep models.Dependency) error {
	if !dep.Item.Kind.Valid() || !dep.DependsOn.Kind.Valid() {
		return fmt.Errorf("dependency %s -> %s: unknown reference kind", dep.Item, dep.DependsOn)
	}

	_, err := db.Exec(`
		INSERT INTO dependencies (item_kind, item_id, target_kind, target_id)
		VALUES (?, ?, ?, ?)
	`, string(dep.Item.Kind), dep.Item.ID, string(dep.DependsOn.Kind), dep.DependsOn.ID)
	if err != nil {
		return fmt.Errorf("add dependency %s -> %s: %w", dep.Item, dep.DependsOn, err)
	}
	return nil
}

// ListDependencies lists every dependency edge.
func (db *DB) ListDependencies() ([]models.Dependency, error) {
	rows, err := db.Query(`
		SELECT item_kind, item_id, target_kind, target_id
		FROM dependencies ORDER BY item_kind, item_id, target_kind, target_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []models.Dependency
	for rows.Next() {
		var d models.Dependency
		if err := rows.Scan(&d.Item.Kind, &d.Item.ID, &d.DependsOn.Kind, &d.DependsOn.ID); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// ListDependenciesFrom lists the edges whose source is the given item.
func (db *DB) ListDependenciesFrom(item models.ItemRef) ([]models.Dependency, error) {
	rows, err := db.Query(`
		SELECT item_kind, item_id, target_kind, target_id
		FROM dependencies
		WHERE item_kind = ? AND item_id = ?
		ORDER BY target_kind, target_id
	`, string(item.Kind), item.ID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies from %s: %w", item, err)
	}
	defer rows.Close()

	var deps []models.Dependency
	for rows.Next() {
		var d models.Dependency
		if err := rows.Scan(&d.Item.Kind, &d.Item.ID, &d.DependsOn.Kind, &d.DependsOn.ID); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// UnmetDependencies lists the dependency targets of an item that are not
// yet terminal. A skipped target satisfies its dependents the same as a
// complete one, so neither appears here.
func (db *DB) UnmetDependencies(item models.ItemRef) ([]models.ItemRef, error) {
	rows, err := db.Query(`
		SELECT d.target_kind, d.target_id
		FROM dependencies d
		JOIN work_items w ON w.kind = d.target_kind AND w.id = d.target_id
		WHERE d.item_kind = ? AND d.item_id = ?
		  AND w.status NOT IN ('complete', 'skipped')
		ORDER BY d.target_kind, d.target_id
	`, string(item.Kind), item.ID)
	if err != nil {
		return nil, fmt.Errorf("unmet dependencies of %s: %w", item, err)
	}
	defer rows.Close()

	var refs []models.ItemRef
	for rows.Next() {
		var r models.ItemRef
		if err := rows.Scan(&r.Kind, &r.ID); err != nil {
			return nil, fmt.Errorf("scan dependency target: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}
