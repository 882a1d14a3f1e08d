package memory

type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create turns",
		SQL: `
			CREATE TABLE turns (
				seq         INTEGER PRIMARY KEY AUTOINCREMENT,
				id          TEXT NOT NULL UNIQUE,
				role        TEXT NOT NULL CHECK (role IN ('user', 'agent')),
				content     TEXT NOT NULL,
				created_at  TEXT NOT NULL
			);
		`,
	},
}
