// Package extensions is the core catalog of generic Sierra types and
// libfuncs.
//
// A generic type or libfunc becomes concrete by specialization: its generic
// arguments are checked against the catalog entry and resolved into a
// ConcreteType or ConcreteLibfunc. Specialization never mutates the program
// and reports the first violation as a *SpecializationError.
//
// Specialization needs read access to previously declared types and to the
// program's functions; callers provide it through TypeContext and
// LibfuncContext. The registry package is the only production caller.
package extensions
