// Package resource bounds the resources annidx consumes.
//
// A Controller accounts vector memory held by stores, limits how many
// index builds run at once, and throttles snapshot I/O. A nil
// *Controller is valid and imposes no limits.
package resource
