package feedback

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE submission(
			id INTEGER PRIMARY KEY,
			folder TEXT NOT NULL,
			created INT NOT NULL,
			detector TEXT,
			has_image BOOLEAN NOT NULL,
			num_objects INT NOT NULL
		);
		CREATE UNIQUE INDEX idx_submission_folder ON submission(folder);
		CREATE INDEX idx_submission_created ON submission(created);

		CREATE TABLE comment(
			id INTEGER PRIMARY KEY,
			created INT NOT NULL,
			name TEXT,
			text TEXT NOT NULL
		);
	`))

	return migs
}
