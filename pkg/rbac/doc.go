// Package rbac resolves what a user may do and guards HTTP routes accordingly.
//
// # Permissions
//
// Permission is a closed catalog of capabilities with stable integer ids that
// are persisted in role and user rows. Unknown ids are rejected wherever they
// enter the system, whether from JSON, YAML seeds or the database:
//
//	p, err := rbac.ParsePermission(7) // rbac.PublishBlog
//	_, err = rbac.ParsePermission(99) // errors.Is(err, rbac.ErrInvalidPermission)
//
// PermissionSet has value semantics: Union and Difference return new sets.
// A Requirement is a disjunction of conjunctions, so
//
//	rbac.Requirement{{rbac.ApproveBlog, rbac.PublishBlog}, {rbac.TakeDownBlog}}
//
// is satisfied by holding approve_blog and publish_blog, or take_down_blog.
//
// # Resolution
//
// A user's effective set is their role's permissions plus their extra overlay,
// minus their removed overlay. Removal is applied last and always wins. The
// overlays live on the user row and are never merged into the role.
//
// # Guard
//
// Guard.Authorize reads the user and role fresh on every call:
//
//	decision, err := guard.Authorize(ctx, identity, rbac.RequireAll(rbac.PublishBlog))
//	if err != nil {
//		// store failure or dangling role reference
//	}
//	if !decision.Allowed {
//		return decision.Err() // ErrUnauthenticated or ErrForbidden
//	}
//
// Users holding the superuser role pass every check without resolution. The
// default and superuser roles can never be updated or deleted; see
// NeverModifyProtectedRole.
//
// # HTTP
//
// PermissionMiddleware.Require wraps handlers with the authentication and
// permission checks. Handlers exposes role CRUD and the per-user overlay and
// role assignment endpoints.
//
// # Seeds
//
// Roles can be declared in a YAML file and upserted at startup:
//
//	roles:
//	  - id: 3
//	    name: editor
//	    permissions: [read_blog, create_blog, submit_blog, approve_blog, publish_blog]
//
// WatchSeedFile re-applies the file whenever it changes.
package rbac
