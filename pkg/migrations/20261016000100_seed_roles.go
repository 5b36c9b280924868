package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	rolePermissions := map[string]map[string][]string{
		"staff": {
			"catalog":     {"read", "write"},
			"inventory":   {"read", "write"},
			"circulation": {"read", "write"},
			"loans":       {"read", "write"},
			"reports":     {"read"},
		},
		"member": {
			"catalog": {"read"},
			"loans":   {"read", "write"},
		},
	}

	up := func(_ context.Context, db *bun.DB) error {
		for _, role := range []string{"staff", "member"} {
			_, err := db.Exec(`INSERT INTO roles (name) VALUES (?)`, role)
			if err != nil {
				return errors.WithStack(err)
			}

			var roleID int
			err = db.QueryRow(`SELECT id FROM roles WHERE name = ?`, role).Scan(&roleID)
			if err != nil {
				return errors.WithStack(err)
			}

			for resource, operations := range rolePermissions[role] {
				for _, operation := range operations {
					_, err = db.Exec(`INSERT INTO permissions (role_id, resource, operation) VALUES (?, ?, ?)`,
						roleID, resource, operation)
					if err != nil {
						return errors.WithStack(err)
					}
				}
			}
		}
		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`DELETE FROM permissions WHERE role_id IN (SELECT id FROM roles WHERE name IN ('staff', 'member'))`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`DELETE FROM roles WHERE name IN ('staff', 'member')`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
