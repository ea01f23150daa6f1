package merge

import "github.com/wudi/pdfmerge/ir/raw"

// Role is the structural role of an object, derived once from its /Type.
type Role int

const (
	RoleOther Role = iota
	RoleCatalog
	RolePages
	RolePage
	RoleOutlines
	RoleOutline
)

func (r Role) String() string {
	switch r {
	case RoleCatalog:
		return "Catalog"
	case RolePages:
		return "Pages"
	case RolePage:
		return "Page"
	case RoleOutlines:
		return "Outlines"
	case RoleOutline:
		return "Outline"
	default:
		return "Other"
	}
}

// Classify returns the role of obj. The /Type entry may be an indirect
// reference to a name; anything unresolvable is RoleOther.
func Classify(doc *raw.Document, obj raw.Object) Role {
	dict, ok := raw.DictOf(obj)
	if !ok {
		return RoleOther
	}
	typ, ok := dict.Lookup("Type")
	if !ok {
		return RoleOther
	}
	name, ok := raw.NameOf(doc.Resolve(typ))
	if !ok {
		return RoleOther
	}
	switch name {
	case "Catalog":
		return RoleCatalog
	case "Pages":
		return RolePages
	case "Page":
		return RolePage
	case "Outlines":
		return RoleOutlines
	case "Outline":
		return RoleOutline
	}
	return RoleOther
}

// classifyAll computes the role of every object in the table.
func classifyAll(doc *raw.Document) map[raw.ObjectRef]Role {
	roles := make(map[raw.ObjectRef]Role, len(doc.Objects))
	for ref, obj := range doc.Objects {
		roles[ref] = Classify(doc, obj)
	}
	return roles
}
