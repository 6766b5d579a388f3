package userstore

// FieldSpec describes one column of a table declared in Schema.
type FieldSpec struct {
	Name    string
	SQLType string // raw SQL type, e.g. "TEXT", "INTEGER"
}

// TableSchema is one entry of the {table -> [field spec...]} schema table
// list spec §4.1 describes. KeyFields are the columns making up the
// case-insensitive primary key; every table here keys on a single
// lowercased username column.
type TableSchema struct {
	Name      string
	KeyFields []string
	Fields    []FieldSpec
}

// TableWTUsers is the webtiles service's user table.
const TableWTUsers = "wt_users"

// TableTVUsers is the TV service's user table.
const TableTVUsers = "tv_users"

// Schema is the declarative list of tables Load creates if missing.
var Schema = []TableSchema{
	{
		Name:      TableWTUsers,
		KeyFields: []string{"name_lower"},
		Fields: []FieldSpec{
			{Name: "name_lower", SQLType: "TEXT PRIMARY KEY"},
			{Name: "name", SQLType: "TEXT NOT NULL"},
			{Name: "nick", SQLType: "TEXT NOT NULL DEFAULT ''"},
			{Name: "subscription", SQLType: "INTEGER NOT NULL DEFAULT 0"},
			{Name: "twitch_username", SQLType: "TEXT NOT NULL DEFAULT ''"},
			{Name: "twitch_reminder", SQLType: "INTEGER NOT NULL DEFAULT 0"},
			{Name: "player_only", SQLType: "INTEGER NOT NULL DEFAULT 0"},
		},
	},
	{
		Name:      TableTVUsers,
		KeyFields: []string{"name_lower"},
		Fields: []FieldSpec{
			{Name: "name_lower", SQLType: "TEXT PRIMARY KEY"},
			{Name: "name", SQLType: "TEXT NOT NULL"},
			{Name: "nick", SQLType: "TEXT NOT NULL DEFAULT ''"},
		},
	},
}
