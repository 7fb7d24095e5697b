package cpqlorm

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DialectTag selects parameter placeholder syntax, identifier quoting,
// and identity-return mechanism (spec.md §4.D, §6, GLOSSARY). The core
// never imports a driver-specific type outside this file; the three
// blank imports above only register database/sql drivers so a *sql.DB
// can be opened against any of them. The connection provider itself
// (DSN, pooling policy, retries) stays outside this core per spec.md
// §1's explicit non-goal.
type DialectTag int

const (
	DialectSQLServer DialectTag = iota
	DialectPostgreSQL
	DialectSQLite
	DialectMySQL
	DialectMariaDB
)

// IdentityMechanism names how a generated primary key is read back after
// an INSERT (spec.md §6).
type IdentityMechanism int

const (
	IdentityOutputClause IdentityMechanism = iota // SQL Server: OUTPUT
	IdentityReturning                             // PostgreSQL/SQLite: RETURNING
	IdentityLastInsertID                          // MySQL/MariaDB: last-insert-id
)

// Dialect bundles everything the SQL generator needs to render
// dialect-correct SQL for one backend.
type Dialect struct {
	Tag       DialectTag
	DriverName string

	// Placeholder renders the Nth (1-based) bound parameter in this
	// dialect's native form: "@name" for SQL Server, "$n" for
	// PostgreSQL/SQLite, "?" for MySQL/MariaDB.
	Placeholder func(index int, name string) string

	// QuoteIdentifier wraps an identifier exposed via AS per §4.D rule 6:
	// unquoted for SQL Server/default, double-quoted for
	// PostgreSQL/SQLite, backtick-quoted for MySQL/MariaDB.
	QuoteIdentifier func(ident string) string

	Identity IdentityMechanism

	// SupportsRightJoin documents a dialect's ability to execute a
	// generated RIGHT JOIN. The generator emits RIGHT JOIN uniformly
	// regardless of this flag (see DESIGN.md, Open Question 1) — it is
	// exposed so callers can pre-flight a query text if they want a
	// clearer error than a driver-level syntax error.
	SupportsRightJoin bool
}

func atPlaceholder(_ int, name string) string { return "@" + name }
func dollarPlaceholder(index int, _ string) string { return fmt.Sprintf("$%d", index) }
func questionPlaceholder(_ int, _ string) string { return "?" }

func noQuote(ident string) string { return ident }
func doubleQuote(ident string) string { return `"` + ident + `"` }
func backtickQuote(ident string) string { return "`" + ident + "`" }

// Dialects holds the five preconfigured dialects spec.md §4.D/§6 name.
var Dialects = struct {
	SQLServer  *Dialect
	PostgreSQL *Dialect
	SQLite     *Dialect
	MySQL      *Dialect
	MariaDB    *Dialect
}{
	SQLServer: &Dialect{
		Tag:               DialectSQLServer,
		DriverName:        "sqlserver",
		Placeholder:       atPlaceholder,
		QuoteIdentifier:   noQuote,
		Identity:          IdentityOutputClause,
		SupportsRightJoin: true,
	},
	PostgreSQL: &Dialect{
		Tag:               DialectPostgreSQL,
		DriverName:        "pgx",
		Placeholder:       dollarPlaceholder,
		QuoteIdentifier:   doubleQuote,
		Identity:          IdentityReturning,
		SupportsRightJoin: true,
	},
	SQLite: &Dialect{
		Tag:               DialectSQLite,
		DriverName:        "sqlite3",
		Placeholder:       dollarPlaceholder,
		QuoteIdentifier:   doubleQuote,
		Identity:          IdentityReturning,
		SupportsRightJoin: false, // historically unsupported; see DESIGN.md
	},
	MySQL: &Dialect{
		Tag:               DialectMySQL,
		DriverName:        "mysql",
		Placeholder:       questionPlaceholder,
		QuoteIdentifier:   backtickQuote,
		Identity:          IdentityLastInsertID,
		SupportsRightJoin: true,
	},
	MariaDB: &Dialect{
		Tag:               DialectMariaDB,
		DriverName:        "mysql",
		Placeholder:       questionPlaceholder,
		QuoteIdentifier:   backtickQuote,
		Identity:          IdentityLastInsertID,
		SupportsRightJoin: true,
	},
}

// joinKeyword renders a JoinKind in the target dialect's SQL. SQLite
// lacks native RIGHT JOIN execution, but the generator still emits it —
// see DESIGN.md Open Question 1.
func joinKeyword(kind JoinKind) string {
	switch kind {
	case JoinInner:
		return "INNER JOIN"
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	default:
		return "INNER JOIN"
	}
}

