package models

import (
	"crypto/sha256"
	"encoding/hex"
)

// SpecialRef names the pseudo revisions of a repository.
type SpecialRef string

// Special revisions understood by the diff resolver and the backend.
const (
	RefIndex   SpecialRef = "INDEX"
	RefWorking SpecialRef = "WORKING"
	RefHead    SpecialRef = "HEAD"
)

// RevisionRef is either a special revision or a git ref (SHA or symbolic name).
// The zero value is not a valid reference.
type RevisionRef struct {
	special SpecialRef
	git     string
}

// Special builds a reference to INDEX, WORKING or HEAD.
func Special(ref SpecialRef) RevisionRef {
	return RevisionRef{special: ref}
}

// GitRef builds a reference to a commit SHA or symbolic ref.
func GitRef(ref string) RevisionRef {
	return RevisionRef{git: ref}
}

// IsSpecial reports whether the reference is one of the special revisions.
func (r RevisionRef) IsSpecial() bool {
	return r.special != ""
}

// SpecialRef returns the special revision, or "" for git refs.
func (r RevisionRef) SpecialRef() SpecialRef {
	return r.special
}

// Git returns the git ref text, or "" for special revisions.
func (r RevisionRef) Git() string {
	return r.git
}

// IsZero reports whether the reference is unset.
func (r RevisionRef) IsZero() bool {
	return r.special == "" && r.git == ""
}

// String returns the canonical form used on the wire and in identity keys.
func (r RevisionRef) String() string {
	if r.special != "" {
		return string(r.special)
	}
	return r.git
}

// ParseRevision maps wire text back to a reference. INDEX and WORKING are
// always special; everything else, HEAD included, is a git ref.
func ParseRevision(text string) RevisionRef {
	switch SpecialRef(text) {
	case RefIndex, RefWorking:
		return Special(SpecialRef(text))
	}
	return GitRef(text)
}

// DiffContext names the two revisions compared for a file.
type DiffContext struct {
	Path     string
	Previous RevisionRef
	Current  RevisionRef
}

// IdentityKey identifies the diff view for (Path, Current).
// At most one view is open per key.
func (d DiffContext) IdentityKey() string {
	sum := sha256.Sum256([]byte(d.Path + "\x00" + d.Current.String()))
	return hex.EncodeToString(sum[:])
}
