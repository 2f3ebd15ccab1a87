// Package postgres implements the tenantauth persistence contracts on
// PostgreSQL through database/sql and the pgx stdlib driver.
//
// [Store] satisfies identity.Store and identity.Admin, [LockoutStore]
// satisfies lockout.Store and [SessionStore] satisfies session.Store. All
// three share one *sql.DB.
//
// Schema changes live in migrations/*.sql, are embedded in the binary and
// applied in name order by [Store.Migrate].
//
// # What this package must NOT do
//
//   - Hash or verify passwords.
//   - Decide lockout policy. It only stores counters.
//   - Filter foreign-tenant roles out of UserRoles. The resolver rejects them.
package postgres
