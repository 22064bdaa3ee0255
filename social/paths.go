// Package social derives social-graph relationships from the protocol's
// slash-delimited content paths and structured value payloads. Everything in
// it is pure string work; malformed input degrades to unset fields, never to
// an error.
package social

import "strings"

const (
	groupsSegment = "groups"
	graphSegment  = "graph"
)

// PathInfo captures ownership and typing for one content path.
type PathInfo struct {
	// AccountID is the owning account. For direct group paths the event
	// author is attributed as the acting account; the contract does not
	// embed a personal-account prefix there.
	AccountID string
	// DataType and DataID are the second and third path segments for
	// personal content, or the authoritative positions of the group path
	// for group content.
	DataType string
	DataID   string
	// GroupID is set when the group path names the owning group.
	GroupID string
	// TargetAccount is the fourth segment of {account}/graph/{edge}/{target}
	// paths. The edge's semantic meaning is opaque to this engine.
	TargetAccount  string
	IsGroupContent bool
}

// ResolvePath classifies a content path. author is the event author and is
// used as the acting account for group content. groupPath is the contract's
// authoritative group location for group content and is never re-derived
// from the main path.
func ResolvePath(path, author, groupPath string) PathInfo {
	info := PathInfo{}
	segs := splitPath(path)
	if len(segs) == 0 {
		return info
	}
	if segs[0] == groupsSegment || (len(segs) > 1 && segs[1] == groupsSegment) {
		info.IsGroupContent = true
		info.AccountID = strings.TrimSpace(author)
		info.GroupID, info.DataType, info.DataID = groupPositions(groupPath)
		return info
	}
	info.AccountID = segs[0]
	if len(segs) > 1 {
		info.DataType = segs[1]
	}
	if len(segs) > 2 {
		info.DataID = segs[2]
	}
	if info.DataType == graphSegment && len(segs) > 3 {
		info.TargetAccount = segs[3]
	}
	return info
}

// groupPositions reads <groupId>/<type>/<id> out of the contract-supplied
// group path. A leading "groups" segment is stripped so both relative and
// fully qualified shapes resolve identically.
func groupPositions(groupPath string) (groupID, dataType, dataID string) {
	segs := splitPath(groupPath)
	if len(segs) > 0 && segs[0] == groupsSegment {
		segs = segs[1:]
	}
	if len(segs) > 0 {
		groupID = segs[0]
	}
	if len(segs) > 1 {
		dataType = segs[1]
	}
	if len(segs) > 2 {
		dataID = segs[2]
	}
	return groupID, dataType, dataID
}

// FirstSegment returns the leading segment of a path, which for reference
// paths is the referenced author.
func FirstSegment(path string) string {
	segs := splitPath(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

func splitPath(path string) []string {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	segs := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segs = append(segs, part)
	}
	return segs
}
