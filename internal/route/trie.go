package route

// trie indexes table positions by pattern segments. It is not synchronized;
// the Table that owns it guards access.
type trie struct {
	root *trieNode
}

type trieNode struct {
	children map[string]*trieNode

	// globs lists the children keyed by a glob segment such as "cre*".
	globs []string

	// position is the table position of the pattern that terminates here,
	// or -1.
	position int
}

func newTrieNode() *trieNode {
	return &trieNode{
		children: make(map[string]*trieNode),
		position: -1,
	}
}

func newTrie() *trie {
	return &trie{root: newTrieNode()}
}

// insert records position for pattern, replacing any previous position.
func (t *trie) insert(pattern string, position int) {
	node := t.root
	for _, seg := range Segments(pattern) {
		child := node.children[seg]
		if child == nil {
			child = newTrieNode()
			node.children[seg] = child
			if isGlob(seg) {
				node.globs = append(node.globs, seg)
			}
		}
		node = child
	}
	node.position = position
}

// visitKey memoizes (node, depth) pairs so ** cannot blow up the search.
type visitKey struct {
	node  *trieNode
	depth int
}

type matchState struct {
	segments []string
	visited  map[visitKey]struct{}
	collect  func(position int)
}

// match calls collect for the position of every pattern matching segments.
// Each matching pattern is reported once, in no particular order.
func (t *trie) match(segments []string, collect func(position int)) {
	state := &matchState{
		segments: segments,
		visited:  make(map[visitKey]struct{}),
		collect:  collect,
	}
	state.walk(t.root, 0)
}

func (s *matchState) walk(node *trieNode, depth int) {
	key := visitKey{node: node, depth: depth}
	if _, seen := s.visited[key]; seen {
		return
	}
	s.visited[key] = struct{}{}

	if depth == len(s.segments) {
		if node.position >= 0 {
			s.collect(node.position)
		}
		// ** also matches zero trailing segments.
		if child := node.children[WildcardMulti]; child != nil {
			s.walk(child, depth)
		}
		return
	}

	segment := s.segments[depth]

	if child := node.children[segment]; child != nil {
		s.walk(child, depth+1)
	}

	if segment != WildcardSingle {
		if child := node.children[WildcardSingle]; child != nil {
			s.walk(child, depth+1)
		}
	}

	for _, glob := range node.globs {
		if glob != segment && matchSegment(glob, segment) {
			s.walk(node.children[glob], depth+1)
		}
	}

	if child := node.children[WildcardMulti]; child != nil {
		for i := depth; i <= len(s.segments); i++ {
			s.walk(child, i)
		}
	}
}
