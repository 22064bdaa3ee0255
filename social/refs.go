package social

import "socialindex/events"

// References are the hierarchical and lateral relationships embedded in a
// structured value payload. Absent fields stay unset; an empty string is
// never used as a stand-in for "no reference".
type References struct {
	// Parent links hierarchical relationships (reply, subtask, comment).
	ParentPath   string
	ParentAuthor string
	ParentType   string
	// Ref links a single lateral relationship (quote, cite, embed).
	RefPath   string
	RefAuthor string
	RefType   string
	// Refs carries the multi-reference form, with one author per entry in
	// the same order. Populated only when at least one entry parses as a
	// non-empty string.
	Refs       []string
	RefAuthors []string
}

// ExtractReferences pulls parent/ref/refs relationships out of a structured
// value payload. A nil or non-object value yields the zero References.
func ExtractReferences(value events.Fields) References {
	refs := References{}
	if value == nil {
		return refs
	}
	if parent := value.String("parent"); parent != "" {
		refs.ParentPath = parent
		refs.ParentAuthor = FirstSegment(parent)
		refs.ParentType = value.String("parent_type")
	}
	if ref := value.String("ref"); ref != "" {
		refs.RefPath = ref
		refs.RefAuthor = FirstSegment(ref)
		refs.RefType = value.String("ref_type")
	}
	if list := value.Strings("refs"); len(list) > 0 {
		refs.Refs = list
		refs.RefAuthors = make([]string, len(list))
		for i, entry := range list {
			refs.RefAuthors[i] = FirstSegment(entry)
		}
	}
	return refs
}
