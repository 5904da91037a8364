// Package lsdb keeps the link state database: one ordered store per flooding
// scope, keyed by (type, advertising router, link-state id).
package lsdb

import (
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/google/btree"
)

const degree = 16

// Store is an ordered map of vertices for a single flooding scope. It is not
// safe for concurrent use, all access happens on the main loop.
type Store struct {
	tree *btree.BTreeG[*Vertex]
}

func vertexLess(a, b *Vertex) bool {
	return a.Key.Less(b.Key)
}

func NewStore() *Store {
	return &Store{tree: btree.NewG[*Vertex](degree, vertexLess)}
}

func (s *Store) Len() int {
	return s.tree.Len()
}

func (s *Store) Find(k lsa.Key) *Vertex {
	v, ok := s.tree.Get(&Vertex{Key: k})
	if !ok {
		return nil
	}
	return v
}

// Insert stores v, returning the vertex it replaced if any.
func (s *Store) Insert(v *Vertex) *Vertex {
	old, ok := s.tree.ReplaceOrInsert(v)
	if !ok {
		return nil
	}
	return old
}

func (s *Store) Delete(k lsa.Key) *Vertex {
	v, ok := s.tree.Delete(&Vertex{Key: k})
	if !ok {
		return nil
	}
	return v
}

// Ascend visits every vertex in key order until fn returns false.
func (s *Store) Ascend(fn func(v *Vertex) bool) {
	s.tree.Ascend(fn)
}

// AscendType visits the vertices of one LSA type.
func (s *Store) AscendType(t lsa.Type, fn func(v *Vertex) bool) {
	s.tree.AscendGreaterOrEqual(&Vertex{Key: lsa.Key{Type: t}}, func(v *Vertex) bool {
		if v.Key.Type != t {
			return false
		}
		return fn(v)
	})
}

// AscendAdv visits the vertices of one type originated by one router, in
// ascending link-state id order.
func (s *Store) AscendAdv(t lsa.Type, adv uint32, fn func(v *Vertex) bool) {
	s.tree.AscendGreaterOrEqual(&Vertex{Key: lsa.Key{Type: t, AdvRouter: adv}}, func(v *Vertex) bool {
		if v.Key.Type != t || v.Key.AdvRouter != adv {
			return false
		}
		return fn(v)
	})
}

// Vertices returns all vertices in key order.
func (s *Store) Vertices() []*Vertex {
	out := make([]*Vertex, 0, s.tree.Len())
	s.tree.Ascend(func(v *Vertex) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Clear stops every pending vertex timer and empties the store.
func (s *Store) Clear() {
	s.tree.Ascend(func(v *Vertex) bool {
		v.StopTimer()
		return true
	})
	s.tree.Clear(false)
}

// FindLSID picks the link-state id for a new self-originated body.
// If an instance describing the same destination already exists its id is
// reused, otherwise the lowest id not yet taken by adv is returned so two
// different destinations never share an id.
func (s *Store) FindLSID(adv uint32, body lsa.Body) uint32 {
	ident, _ := body.(lsa.Identifier)
	var (
		next   uint32
		gap    bool
		result uint32
		found  bool
	)
	s.AscendAdv(body.Type(), adv, func(v *Vertex) bool {
		if ident != nil && v.LSA != nil && ident.SameDestination(v.LSA.Body) {
			result, found = v.Key.ID, true
			return false
		}
		if !gap {
			if v.Key.ID == next {
				next++
			} else if v.Key.ID > next {
				gap = true
			}
		}
		return true
	})
	if found {
		return result
	}
	return next
}
