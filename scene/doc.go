// Package scene defines the object model shared by the index, the culler and
// the renderer: registered objects, their level of detail, and the viewport.
//
// Objects are owned by the application. The spatial index and the culler hold
// pointers to them and never copy or mutate them, except for the insertion
// sequence assigned by a Set.
package scene
