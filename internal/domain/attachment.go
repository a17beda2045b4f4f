package domain

// AttachmentKind names one of the per-node side content tables
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentCodebox  AttachmentKind = "codebox"
	AttachmentGrid     AttachmentKind = "grid"
	AttachmentBookmark AttachmentKind = "bookmark"
)

// PositionalKinds are the attachment kinds keyed by (node_id, offset)
var PositionalKinds = []AttachmentKind{AttachmentImage, AttachmentCodebox, AttachmentGrid}

// Anchor locates a positional attachment inside a node's rich text
type Anchor struct {
	NodeID        int64  `json:"node_id"`
	Offset        int    `json:"offset"`
	Justification string `json:"justification,omitempty"`
}

// Image is an embedded picture or anchor inside a rich node
type Image struct {
	Anchor
	AnchorName string `json:"anchor,omitempty"`
	PNG        []byte `json:"-"`
	Filename   string `json:"filename,omitempty"`
	Link       string `json:"link,omitempty"`
}

// Codebox is an embedded code block inside a rich node
type Codebox struct {
	Anchor
	Body   string `json:"body"`
	Syntax string `json:"syntax"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Grid is an embedded table inside a rich node
type Grid struct {
	Anchor
	Body   string `json:"body"`
	ColMin int    `json:"col_min"`
	ColMax int    `json:"col_max"`
}

// Bookmark marks a node as bookmarked; a node has at most one
type Bookmark struct {
	NodeID   int64 `json:"node_id"`
	Sequence int   `json:"sequence"`
}
