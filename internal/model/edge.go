package model

// EdgeKind names one family of user→entity edges (a like or a bookmark)
// together with the denormalized counter it keeps in sync.
type EdgeKind string

const (
	PostLike     EdgeKind = "post_like"
	CocktailLike EdgeKind = "cocktail_like"
	BarBookmark  EdgeKind = "bar_bookmark"
)

// EdgeKinds lists every kind, in a stable order.
var EdgeKinds = []EdgeKind{PostLike, CocktailLike, BarBookmark}

// Valid reports whether k is one of the known kinds.
func (k EdgeKind) Valid() bool {
	switch k {
	case PostLike, CocktailLike, BarBookmark:
		return true
	}
	return false
}

// EdgeStatus is the result of every edge operation: the entity's counter
// after the operation and whether the caller holds an edge.
type EdgeStatus struct {
	Total int64
	Mine  bool
}
