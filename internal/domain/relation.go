package domain

// Relation places a node under its father and orders it among siblings
type Relation struct {
	NodeID   int64 `json:"node_id" yaml:"node_id"`
	FatherID int64 `json:"father_id" yaml:"father_id"`
	Sequence int   `json:"sequence" yaml:"sequence"`
}

// IsTopLevel reports whether the relation hangs from the virtual root
func (r *Relation) IsTopLevel() bool {
	return r.FatherID == RootID
}

// Validate checks the record-level constraints of a relation
func (r *Relation) Validate() error {
	if r.NodeID <= RootID {
		return InvalidArgumentf("relation node id %d must be positive", r.NodeID)
	}
	if r.FatherID < RootID {
		return InvalidArgumentf("parent id %d is out of range", r.FatherID)
	}
	if r.FatherID == r.NodeID {
		return InvalidArgumentf("node %d cannot be its own parent", r.NodeID)
	}
	return nil
}

// DiffRelation lists the persisted fields that differ between before and after
func DiffRelation(before, after Relation) []Field {
	var changed []Field
	if before.FatherID != after.FatherID {
		changed = append(changed, FieldFatherID)
	}
	if before.Sequence != after.Sequence {
		changed = append(changed, FieldSequence)
	}
	return changed
}

// LevelUnder returns the level a child of a node at parentLevel must carry
func LevelUnder(parentLevel int) int {
	return parentLevel + 1
}
