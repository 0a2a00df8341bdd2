package scene

import "iter"

// Set is the registry of live objects keyed by ID.
// It assigns each added object a monotonically increasing insertion sequence.
//
// Thread safety: a Set is not safe for concurrent use.
type Set struct {
	objects map[ObjectID]*Object
	nextSeq uint64
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{objects: make(map[ObjectID]*Object)}
}

// Add registers obj and stamps its insertion sequence. Adding an ID that is
// already present replaces the previous object and reports it.
func (s *Set) Add(obj *Object) (replaced *Object) {
	replaced = s.objects[obj.ID]
	s.nextSeq++
	obj.seq = s.nextSeq
	s.objects[obj.ID] = obj
	return replaced
}

// Get returns the object registered under id.
func (s *Set) Get(id ObjectID) (*Object, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

// Remove unregisters id and returns the removed object.
func (s *Set) Remove(id ObjectID) (*Object, bool) {
	obj, ok := s.objects[id]
	if ok {
		delete(s.objects, id)
	}
	return obj, ok
}

// Len returns the number of registered objects.
func (s *Set) Len() int {
	return len(s.objects)
}

// All iterates over the registered objects in no particular order.
func (s *Set) All() iter.Seq[*Object] {
	return func(yield func(*Object) bool) {
		for _, obj := range s.objects {
			if !yield(obj) {
				return
			}
		}
	}
}

// Clear unregisters every object. The sequence counter keeps running.
func (s *Set) Clear() {
	clear(s.objects)
}
