// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

// trie is a reference-counted set of subscription prefixes.
type trie struct {
	refcnt int
	next   map[byte]*trie
}

func newTrie() *trie { return &trie{} }

// add adds prefix and reports whether it was not there before.
func (t *trie) add(prefix []byte) bool {
	node := t
	for _, c := range prefix {
		if node.next == nil {
			node.next = make(map[byte]*trie)
		}
		child, ok := node.next[c]
		if !ok {
			child = &trie{}
			node.next[c] = child
		}
		node = child
	}
	node.refcnt++
	return node.refcnt == 1
}

// rm removes one reference to prefix and reports whether it is gone.
func (t *trie) rm(prefix []byte) bool {
	gone, _ := t.rmAt(prefix)
	return gone
}

func (t *trie) rmAt(prefix []byte) (gone, empty bool) {
	if len(prefix) == 0 {
		if t.refcnt == 0 {
			return false, false
		}
		t.refcnt--
		return t.refcnt == 0, t.refcnt == 0 && len(t.next) == 0
	}
	child, ok := t.next[prefix[0]]
	if !ok {
		return false, false
	}
	gone, empty = child.rmAt(prefix[1:])
	if empty {
		delete(t.next, prefix[0])
	}
	return gone, t.refcnt == 0 && len(t.next) == 0
}

// match reports whether a subscribed prefix matches data.
func (t *trie) match(data []byte) bool {
	node := t
	for i := 0; ; i++ {
		if node.refcnt > 0 {
			return true
		}
		if i == len(data) {
			return false
		}
		child, ok := node.next[data[i]]
		if !ok {
			return false
		}
		node = child
	}
}

// walk calls fn for every subscribed prefix with its reference count.
func (t *trie) walk(fn func(prefix []byte, refcnt int)) {
	t.walkFrom(nil, fn)
}

func (t *trie) walkFrom(prefix []byte, fn func([]byte, int)) {
	if t.refcnt > 0 {
		fn(append([]byte(nil), prefix...), t.refcnt)
	}
	for c, child := range t.next {
		child.walkFrom(append(prefix, c), fn)
	}
}

func (t *trie) empty() bool {
	return t.refcnt == 0 && len(t.next) == 0
}
