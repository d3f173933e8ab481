package jsontok

// Iterator walks the direct children of one object or array token. For an
// object it yields key indexes (the value is always key+1); for an array it
// yields element indexes. Nested subtrees are skipped, never entered.
type Iterator struct {
	toks   []Token
	parent int
	cur    int
	idx    int
	count  int
}

// Begin positions the iterator on the children of toks[root] and returns the
// child count.
func (it *Iterator) Begin(toks []Token, root int) (int, error) {
	if root < 0 || root >= len(toks) {
		return 0, ErrNotIterable
	}
	kind := toks[root].Kind
	if kind != KindObject && kind != KindArray {
		return 0, ErrNotIterable
	}
	*it = Iterator{
		toks:   toks,
		parent: root,
		cur:    root + 1,
		count:  toks[root].Size,
	}
	return it.count, nil
}

// Next returns the index of the next child token, or false once every child
// has been yielded.
func (it *Iterator) Next() (int, bool) {
	if it.toks == nil || it.idx >= it.count || it.cur >= len(it.toks) {
		return -1, false
	}
	ret := it.cur
	it.idx++
	step := 1
	if it.toks[it.parent].Kind == KindObject {
		step = 2
	}
	it.cur = skip(it.toks, it.cur, step)
	return ret, true
}

// skip advances past n sibling values (with their subtrees) starting at cur.
// It never returns an index beyond len(toks).
func skip(toks []Token, cur, n int) int {
	for n > 0 && cur < len(toks) {
		switch toks[cur].Kind {
		case KindString, KindPrimitive:
			n--
		case KindObject:
			n += toks[cur].Size*2 - 1
		case KindArray:
			n += toks[cur].Size - 1
		default:
			return len(toks)
		}
		cur++
	}
	return cur
}
