// Package entityaccess resolves the field or method used to read and write
// each mapped role of an entity class.
//
// A class may expose the same role through a field and through a getter or
// setter. Strategy picks one with a fixed precedence (annotated method,
// annotated field, plain method, plain field) and caches the result per
// class and target, so repeated resolution during a save or load is a map
// lookup.
package entityaccess
