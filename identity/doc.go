// Package identity defines tenants, users, roles and permissions and the
// persistence contracts the Engine consumes.
//
// Every lookup below the tenant is scoped by tenant id. [Store] is the
// read/update side used on the request path; [Admin] is the provisioning
// side used by seeders, migrations and operators.
//
// Implementations: identity/memstore (in-process) and store/postgres.
package identity
