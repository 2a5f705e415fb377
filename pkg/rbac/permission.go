package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Permission is an atomic capability. Ids are persisted in role and user
// records and must never be reassigned.
type Permission int

const (
	ReadBlog     Permission = 1
	CreateBlog   Permission = 2
	UpdateBlog   Permission = 3
	DeleteBlog   Permission = 4
	SubmitBlog   Permission = 5
	ApproveBlog  Permission = 6
	PublishBlog  Permission = 7
	TakeDownBlog Permission = 8

	ReadEdition     Permission = 9
	CreateEdition   Permission = 10
	UpdateEdition   Permission = 11
	DeleteEdition   Permission = 12
	SubmitEdition   Permission = 13
	ApproveEdition  Permission = 14
	PublishEdition  Permission = 15
	TakeDownEdition Permission = 16

	ReadRole   Permission = 17
	CreateRole Permission = 18
	UpdateRole Permission = 19
	DeleteRole Permission = 20

	ReadUser              Permission = 21
	UpdateUserPermissions Permission = 22
	AssignRole            Permission = 23
)

var permissionNames = map[Permission]string{
	ReadBlog:     "read_blog",
	CreateBlog:   "create_blog",
	UpdateBlog:   "update_blog",
	DeleteBlog:   "delete_blog",
	SubmitBlog:   "submit_blog",
	ApproveBlog:  "approve_blog",
	PublishBlog:  "publish_blog",
	TakeDownBlog: "take_down_blog",

	ReadEdition:     "read_edition",
	CreateEdition:   "create_edition",
	UpdateEdition:   "update_edition",
	DeleteEdition:   "delete_edition",
	SubmitEdition:   "submit_edition",
	ApproveEdition:  "approve_edition",
	PublishEdition:  "publish_edition",
	TakeDownEdition: "take_down_edition",

	ReadRole:   "read_role",
	CreateRole: "create_role",
	UpdateRole: "update_role",
	DeleteRole: "delete_role",

	ReadUser:              "read_user",
	UpdateUserPermissions: "update_user_permissions",
	AssignRole:            "assign_role",
}

var permissionsByName = func() map[string]Permission {
	byName := make(map[string]Permission, len(permissionNames))
	for p, name := range permissionNames {
		byName[name] = p
	}
	return byName
}()

// ParsePermission converts a persisted id into a Permission
func ParsePermission(id int) (Permission, error) {
	p := Permission(id)
	if _, ok := permissionNames[p]; !ok {
		return 0, fmt.Errorf("%w: id %d", ErrInvalidPermission, id)
	}
	return p, nil
}

// ParsePermissionName converts a catalog name such as "publish_blog" into a Permission
func ParsePermissionName(name string) (Permission, error) {
	p, ok := permissionsByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPermission, name)
	}
	return p, nil
}

// AllPermissions returns the whole catalog in id order
func AllPermissions() []Permission {
	all := make([]Permission, 0, len(permissionNames))
	for p := range permissionNames {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}

func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("permission(%d)", int(p))
}

// UnmarshalJSON rejects ids outside the catalog
func (p *Permission) UnmarshalJSON(data []byte) error {
	var id int
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPermission, err)
	}
	parsed, err := ParsePermission(id)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PermissionSet is an unordered set of permissions with value semantics.
// The zero value is an empty set.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from perms
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// ParsePermissionSet builds a set from persisted ids, failing on the first unknown id
func ParsePermissionSet(ids []int) (PermissionSet, error) {
	set := make(PermissionSet, len(ids))
	for _, id := range ids {
		p, err := ParsePermission(id)
		if err != nil {
			return nil, err
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// Contains reports whether p is in the set
func (s PermissionSet) Contains(p Permission) bool {
	_, ok := s[p]
	return ok
}

// ContainsAll reports whether every permission in perms is in the set
func (s PermissionSet) ContainsAll(perms []Permission) bool {
	for _, p := range perms {
		if !s.Contains(p) {
			return false
		}
	}
	return true
}

// Union returns a new set holding the permissions of s and other
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Difference returns a new set holding the permissions of s not in other
func (s PermissionSet) Difference(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		if !other.Contains(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// Satisfies reports whether at least one conjunction of req is fully contained in s
func (s PermissionSet) Satisfies(req Requirement) bool {
	for _, conjunction := range req {
		if s.ContainsAll(conjunction) {
			return true
		}
	}
	return false
}

// Slice returns the permissions in id order
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IDs returns the persisted ids in ascending order
func (s PermissionSet) IDs() []int {
	ids := make([]int, 0, len(s))
	for _, p := range s.Slice() {
		ids = append(ids, int(p))
	}
	return ids
}

// Names returns the catalog names in id order
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for _, p := range s.Slice() {
		names = append(names, p.String())
	}
	return names
}

// MarshalJSON encodes the set as a sorted array of ids
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// UnmarshalJSON decodes an array of ids, rejecting unknown ids
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPermission, err)
	}
	parsed, err := ParsePermissionSet(ids)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Requirement is a disjunction of conjunctions: [[A, B], [C]] reads (A AND B) OR C.
// An empty requirement means no permission is needed.
type Requirement [][]Permission

// RequireAll builds a requirement satisfied only by holding every perm
func RequireAll(perms ...Permission) Requirement {
	return Requirement{perms}
}

// RequireAny builds a requirement satisfied by holding any one of perms
func RequireAny(perms ...Permission) Requirement {
	req := make(Requirement, 0, len(perms))
	for _, p := range perms {
		req = append(req, []Permission{p})
	}
	return req
}

// IsEmpty reports whether the requirement demands nothing
func (r Requirement) IsEmpty() bool {
	return len(r) == 0
}

func (r Requirement) String() string {
	out := ""
	for i, conjunction := range r {
		if i > 0 {
			out += " OR "
		}
		out += "("
		for j, p := range conjunction {
			if j > 0 {
				out += " AND "
			}
			out += p.String()
		}
		out += ")"
	}
	return out
}
