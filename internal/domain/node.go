package domain

import "time"

// SyntaxPlainText is the syntax assigned to newly created nodes
const SyntaxPlainText = "plain-text"

// RootID is the virtual root every top-level node hangs from
const RootID int64 = 0

// Field names a persisted column that differs between two snapshots
type Field string

const (
	FieldTitle      Field = "title"
	FieldBody       Field = "body"
	FieldSyntax     Field = "syntax"
	FieldIsRich     Field = "is_rich"
	FieldIsReadOnly Field = "is_read_only"
	FieldLevel      Field = "level"
	FieldFatherID   Field = "father_id"
	FieldSequence   Field = "sequence"
)

// Node is the content entity of a note
type Node struct {
	ID         int64     `json:"id" yaml:"id"`
	Title      string    `json:"title" yaml:"title"`
	Body       string    `json:"body,omitempty" yaml:"body,omitempty"`
	Syntax     string    `json:"syntax" yaml:"syntax"`
	IsRich     bool      `json:"is_rich" yaml:"is_rich"`
	IsReadOnly bool      `json:"is_read_only" yaml:"is_read_only"`
	Level      int       `json:"level" yaml:"level"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

// NewNode creates a plain-text node ready for insertion
func NewNode(id int64, title, body string, isRich bool, level int) *Node {
	now := time.Now().UTC()
	return &Node{
		ID:        id,
		Title:     title,
		Body:      body,
		Syntax:    SyntaxPlainText,
		IsRich:    isRich,
		Level:     level,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Editable reports whether raw body content may be written to the node.
// Rich nodes keep their formatting in attachments and markup the core does
// not author, so only plain, writable nodes accept a body.
func (n *Node) Editable() bool {
	return !n.IsReadOnly && !n.IsRich
}

// Validate checks the record-level constraints of a node
func (n *Node) Validate() error {
	if n.ID <= RootID {
		return InvalidArgumentf("node id %d must be positive", n.ID)
	}
	if n.Level < 0 {
		return InvalidArgumentf("node %d has negative level %d", n.ID, n.Level)
	}
	return nil
}

// DiffNode lists the persisted fields that differ between before and after.
// Timestamps are bookkeeping and never count as a change.
func DiffNode(before, after Node) []Field {
	var changed []Field
	if before.Title != after.Title {
		changed = append(changed, FieldTitle)
	}
	if before.Body != after.Body {
		changed = append(changed, FieldBody)
	}
	if before.Syntax != after.Syntax {
		changed = append(changed, FieldSyntax)
	}
	if before.IsRich != after.IsRich {
		changed = append(changed, FieldIsRich)
	}
	if before.IsReadOnly != after.IsReadOnly {
		changed = append(changed, FieldIsReadOnly)
	}
	if before.Level != after.Level {
		changed = append(changed, FieldLevel)
	}
	return changed
}
